package qrtoken

import (
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultPNGSize is the edge length in pixels of rendered codes.
const DefaultPNGSize = 256

// PNG renders text as a QR code image.
func PNG(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}
