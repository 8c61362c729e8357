// Package qr renders token payloads as QR code images for display in class.
package qr

import (
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 320

// Payload is the content encoded in the QR image scanned by students.
type Payload struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PNG encodes the payload as JSON and renders it as a PNG QR code.
func PNG(p Payload, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(body), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
