package linkdrop

import (
	"fmt"
	"os"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// WriteQRCode writes a PNG QR code of the claim URL to filePath.
// The image carries the private key, so the file is readable by the owner only.
func WriteQRCode(filePath, claimURL string) error {
	qr, err := qrcode.New(claimURL, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to create QR code: %w", err)
	}

	// Get PNG image
	png, err := qr.PNG(qrSize)
	if err != nil {
		return fmt.Errorf("failed to generate PNG: %w", err)
	}

	if err := os.WriteFile(filePath, png, 0600); err != nil {
		return fmt.Errorf("failed to write QR code: %w", err)
	}
	return nil
}
