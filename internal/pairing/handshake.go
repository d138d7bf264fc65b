package pairing

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
)

// successReply is the body written back after a successful handshake, in both
// wire modes.
const successReply = `{"success":true,"message":"Pairing successful"}`

const (
	// handshakeReadTimeout bounds all reads on an accepted connection.
	handshakeReadTimeout = 30 * time.Second

	// maxHandshakeBytes caps how much a single connection may send.
	maxHandshakeBytes = 1 << 20
)

// Transport identifies which wire form the device used.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportRaw               // newline-delimited JSON
	TransportHTTP              // POST with JSON body
)

// transportName returns a human-readable transport name.
func transportName(t Transport) string {
	switch t {
	case TransportRaw:
		return "raw"
	case TransportHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Result is the payload delivered by a successful pairing handshake.
// Ownership passes to the caller once produced.
type Result struct {
	URL   string `json:"url"`
	Token string `json:"token"`

	// Transport names the wire form the device used ("raw" or "http").
	// Filled in by the listener, never part of the wire payload.
	Transport string `json:"-"`
}

// handleConn performs one pairing handshake on an accepted connection.
//
// The first line decides the mode: an HTTP request line switches to HTTP
// parsing, anything else is treated as the raw JSON payload itself. The
// dual-mode sniff exists because the mobile client evolved from a raw
// newline-delimited protocol to a standard HTTP POST; both remain in the
// field.
func handleConn(conn net.Conn) (*Result, Transport, error) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeReadTimeout))

	reader := bufio.NewReader(io.LimitReader(conn, maxHandshakeBytes))

	firstLine, err := reader.ReadString('\n')
	if err != nil && firstLine == "" {
		return nil, TransportUnknown, domain.NewPairingError("read", err, "")
	}

	trimmed := strings.TrimSpace(firstLine)
	if strings.HasPrefix(trimmed, "POST ") {
		result, err := handleHTTP(conn, reader, trimmed)
		return result, TransportHTTP, err
	}

	result, err := handleRawLine(conn, trimmed)
	return result, TransportRaw, err
}

// handleRawLine parses the first line as the pairing payload and replies with
// a single JSON success line. On parse failure the connection is closed
// without a reply and the offending line is preserved for diagnostics.
func handleRawLine(conn net.Conn, line string) (*Result, error) {
	result, err := parsePayload([]byte(line))
	if err != nil {
		return nil, domain.NewPairingError("handshake", domain.ErrInvalidPayload, line)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write([]byte(successReply + "\n")); err != nil {
		// The handshake already succeeded; the device just won't see the ack.
		log.Warn().Err(err).Msg("failed to write pairing reply")
	}

	return result, nil
}

// handleHTTP reads header lines until the blank separator, extracts
// Content-Length, reads exactly that many body bytes and parses them as the
// pairing payload. Responses carry a correct Content-Length in both the 200
// and the empty 400 case.
func handleHTTP(conn net.Conn, reader *bufio.Reader, requestLine string) (*Result, error) {
	contentLength := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			writeHTTPResponse(conn, "400 Bad Request", nil)
			return nil, domain.NewPairingError("http headers", domain.ErrInvalidPayload, requestLine)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = n
			}
		}
	}

	if contentLength <= 0 {
		writeHTTPResponse(conn, "400 Bad Request", nil)
		return nil, domain.NewPairingError("http body", domain.ErrInvalidPayload, requestLine)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		writeHTTPResponse(conn, "400 Bad Request", nil)
		return nil, domain.NewPairingError("http body", domain.ErrInvalidPayload, requestLine)
	}

	result, err := parsePayload(body)
	if err != nil {
		writeHTTPResponse(conn, "400 Bad Request", nil)
		return nil, domain.NewPairingError("handshake", domain.ErrInvalidPayload, string(body))
	}

	writeHTTPResponse(conn, "200 OK", []byte(successReply))
	return result, nil
}

// parsePayload decodes a pairing payload. Both fields are required; the
// mobile client always sends them together.
func parsePayload(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result.URL == "" || result.Token == "" {
		return nil, domain.ErrInvalidPayload
	}
	return &result, nil
}

// writeHTTPResponse writes a minimal HTTP/1.1 response.
func writeHTTPResponse(conn net.Conn, status string, body []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	var sb strings.Builder
	sb.WriteString("HTTP/1.1 " + status + "\r\n")
	if len(body) > 0 {
		sb.WriteString("Content-Type: application/json\r\n")
	}
	sb.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	sb.WriteString("Connection: close\r\n")
	sb.WriteString("\r\n")
	sb.Write(body)

	if _, err := conn.Write([]byte(sb.String())); err != nil {
		log.Debug().Err(err).Str("status", status).Msg("failed to write http response")
	}
}
