package pairing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// PairingInfo contains the information encoded in the QR code: where the
// device should deliver its pairing handshake.
type PairingInfo struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// QRGenerator generates QR codes that point a device at the pairing listener.
type QRGenerator struct {
	host         string
	port         int
	name         string
	version      string
	externalHost string // Optional: override host (VPN, port forwarding)
	externalPort int
}

// NewQRGenerator creates a new QR code generator.
func NewQRGenerator(host string, port int, name, version string) *QRGenerator {
	return &QRGenerator{
		host:    host,
		port:    port,
		name:    name,
		version: version,
	}
}

// SetExternalEndpoint overrides the advertised host and port for forwarding
// scenarios. When set, the QR code points devices there instead of at the
// local address.
func (g *QRGenerator) SetExternalEndpoint(host string, port int) {
	g.externalHost = host
	g.externalPort = port
}

// GetPairingInfo returns the pairing information.
func (g *QRGenerator) GetPairingInfo() *PairingInfo {
	host, port := g.host, g.port
	if g.externalHost != "" {
		host = g.externalHost
		if g.externalPort != 0 {
			port = g.externalPort
		}
	}

	return &PairingInfo{
		Host:    host,
		Port:    port,
		Name:    g.name,
		Version: g.version,
	}
}

// GenerateJSON returns the pairing info as JSON.
func (g *QRGenerator) GenerateJSON() (string, error) {
	info := g.GetPairingInfo()
	data, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateTerminal generates a QR code for terminal display.
func (g *QRGenerator) GenerateTerminal() (string, error) {
	jsonData, err := g.GenerateJSON()
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(jsonData, qrcode.Medium)
	if err != nil {
		return "", err
	}

	return qr.ToSmallString(false), nil
}

// GeneratePNG generates a PNG image of the QR code.
func (g *QRGenerator) GeneratePNG(size int) ([]byte, error) {
	jsonData, err := g.GenerateJSON()
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(jsonData, qrcode.Medium, size)
}

// GenerateDataURL generates the QR code as a base64 PNG data URL for
// embedding in a web view.
func (g *QRGenerator) GenerateDataURL(size int) (string, error) {
	png, err := g.GeneratePNG(size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PrintToTerminal prints the QR code to the terminal with a border.
func (g *QRGenerator) PrintToTerminal() {
	qrStr, err := g.GenerateTerminal()
	if err != nil {
		fmt.Printf("  [Error generating QR code: %v]\n", err)
		return
	}

	lines := strings.Split(qrStr, "\n")

	fmt.Println()
	fmt.Println("  Scan with the notilink mobile app:")
	fmt.Println()

	for _, line := range lines {
		if line != "" {
			fmt.Printf("  %s\n", line)
		}
	}

	fmt.Println()
}
