package receipt

import (
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
)

const qrCodeSize = 512

// EncodeQR renders a receipt as a QR code. The payload is base64 so that
// arbitrary bytes survive the text channel.
func EncodeQR(r *Receipt) (image.Image, error) {
	data, err := r.Serialize()
	if err != nil {
		return nil, err
	}
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
	}
	return qrcode.NewQRCodeWriter().Encode(base64.StdEncoding.EncodeToString(data),
		gozxing.BarcodeFormat_QR_CODE, qrCodeSize, qrCodeSize, hints)
}

// DecodeQR finds and parses a receipt QR code in img.
func DecodeQR(img image.Image) (*Receipt, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("gozxing.NewBinaryBitmapFromImage failed: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_PURE_BARCODE: true,
		gozxing.DecodeHintType_TRY_HARDER:   true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return nil, fmt.Errorf("no QR code found: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(result.GetText())
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode QR code data: %w", err)
	}
	r := new(Receipt)
	if err := r.Deserialize(raw); err != nil {
		return nil, err
	}
	return r, nil
}

// decodeQRFrom decodes an encoded image (JPEG or PNG) and then its QR code.
func decodeQRFrom(reader io.Reader) (*Receipt, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("image.Decode failed: %w", err)
	}
	return DecodeQR(img)
}
