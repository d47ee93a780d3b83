package imagepkg

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QR code edge bounds in pixels.
const (
	MinQRSize     = 64
	MaxQRSize     = 1024
	DefaultQRSize = 256
)

// QRCodePNG returns a PNG QR code encoding text, size pixels square. Sizes
// outside [MinQRSize, MaxQRSize] are clamped.
func QRCodePNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("qr: empty text")
	}
	size = min(max(size, MinQRSize), MaxQRSize)
	b, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}
	return b, nil
}
