package devicesim

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DeviceTokenPrefix identifies tokens minted by a simulated device.
const DeviceTokenPrefix = "ntlk_d_"

// Token errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidFormat = errors.New("invalid token format")
)

// TokenClaims is the data encoded in a device token.
type TokenClaims struct {
	DeviceID  string `json:"device_id"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

// TokenIssuer mints and validates the authorization tokens a simulated
// device hands to desktops. Tokens are HMAC-SHA256 signed against a secret
// generated per issuer, so they survive only as long as the process.
type TokenIssuer struct {
	deviceID   string
	secret     []byte
	expirySecs int
}

// NewTokenIssuer creates an issuer with a random device ID and secret.
func NewTokenIssuer(expirySecs int) (*TokenIssuer, error) {
	deviceID, err := randomString(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device ID: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate device secret: %w", err)
	}

	return &TokenIssuer{
		deviceID:   deviceID,
		secret:     secret,
		expirySecs: expirySecs,
	}, nil
}

// DeviceID returns the simulated device's unique ID.
func (ti *TokenIssuer) DeviceID() string {
	return ti.deviceID
}

// Issue mints a new token.
func (ti *TokenIssuer) Issue() (string, time.Time, error) {
	nonce, err := randomString(16)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(ti.expirySecs) * time.Second)

	claims := TokenClaims{
		DeviceID:  ti.deviceID,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
		Nonce:     nonce,
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to marshal claims: %w", err)
	}

	signature := ti.sign(claimsJSON)

	combined := struct {
		Payload   string `json:"p"`
		Signature string `json:"s"`
	}{
		Payload:   base64.RawURLEncoding.EncodeToString(claimsJSON),
		Signature: base64.RawURLEncoding.EncodeToString(signature),
	}

	combinedJSON, err := json.Marshal(combined)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to marshal token: %w", err)
	}

	token := DeviceTokenPrefix + base64.RawURLEncoding.EncodeToString(combinedJSON)
	return token, expiresAt, nil
}

// Validate checks a token's signature, issuer and expiry and returns its
// claims.
func (ti *TokenIssuer) Validate(token string) (*TokenClaims, error) {
	if len(token) <= len(DeviceTokenPrefix) || token[:len(DeviceTokenPrefix)] != DeviceTokenPrefix {
		return nil, ErrInvalidFormat
	}

	combinedJSON, err := base64.RawURLEncoding.DecodeString(token[len(DeviceTokenPrefix):])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	var combined struct {
		Payload   string `json:"p"`
		Signature string `json:"s"`
	}
	if err := json.Unmarshal(combinedJSON, &combined); err != nil {
		return nil, ErrInvalidFormat
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(combined.Payload)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	signature, err := base64.RawURLEncoding.DecodeString(combined.Signature)
	if err != nil {
		return nil, ErrInvalidFormat
	}

	if !hmac.Equal(signature, ti.sign(claimsJSON)) {
		return nil, ErrInvalidToken
	}

	var claims TokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidFormat
	}

	if claims.DeviceID != ti.deviceID {
		return nil, ErrInvalidToken
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrExpiredToken
	}

	return &claims, nil
}

func (ti *TokenIssuer) sign(data []byte) []byte {
	h := hmac.New(sha256.New, ti.secret)
	h.Write(data)
	return h.Sum(nil)
}

// randomString generates a random URL-safe string.
func randomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes)[:length], nil
}
