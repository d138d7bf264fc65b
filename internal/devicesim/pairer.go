package devicesim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/pairing"
)

const pairTimeout = 10 * time.Second

// pairReply is the acknowledgement the desktop listener sends back.
type pairReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Pairer performs the device side of the pairing handshake: it announces
// this device's auth endpoint and token to a desktop listener.
type Pairer struct {
	serverURL string
	token     string
}

// NewPairer creates a pairer that will announce serverURL and token.
func NewPairer(serverURL, token string) *Pairer {
	return &Pairer{serverURL: serverURL, token: token}
}

// PairRaw sends the payload as a single JSON line and reads the JSON line
// acknowledgement, the original wire form of the handshake.
func (p *Pairer) PairRaw(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, pairTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	payload, err := json.Marshal(pairing.Result{URL: p.serverURL, Token: p.token})
	if err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Now().Add(pairTimeout))
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("send pairing payload: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read pairing reply: %w", err)
	}

	return checkReply([]byte(strings.TrimSpace(line)))
}

// PairHTTP sends the payload as an HTTP POST, the wire form newer device
// builds use. The request is written by hand so the bytes match what the
// device actually produces rather than what net/http would.
func (p *Pairer) PairHTTP(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, pairTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	body, err := json.Marshal(pairing.Result{URL: p.serverURL, Token: p.token})
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("POST /pair HTTP/1.1\r\n")
	sb.WriteString("Host: " + addr + "\r\n")
	sb.WriteString("Content-Type: application/json\r\n")
	sb.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	sb.WriteString("Connection: close\r\n")
	sb.WriteString("\r\n")
	sb.Write(body)

	_ = conn.SetDeadline(time.Now().Add(pairTimeout))
	if _, err := conn.Write([]byte(sb.String())); err != nil {
		return fmt.Errorf("send pairing request: %w", err)
	}

	reader := bufio.NewReader(conn)

	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read pairing response: %w", err)
	}
	if !strings.Contains(statusLine, " 200 ") {
		return fmt.Errorf("pairing refused: %s", strings.TrimSpace(statusLine))
	}

	contentLength := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read pairing response headers: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
					contentLength = n
				}
			}
		}
	}

	if contentLength <= 0 {
		return fmt.Errorf("pairing response had no body")
	}

	respBody := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, respBody); err != nil {
		return fmt.Errorf("read pairing response body: %w", err)
	}

	return checkReply(respBody)
}

func checkReply(data []byte) error {
	var reply pairReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("malformed pairing reply: %w", err)
	}
	if !reply.Success {
		return fmt.Errorf("pairing refused: %s", reply.Message)
	}

	log.Debug().Str("message", reply.Message).Msg("pairing acknowledged")
	return nil
}
