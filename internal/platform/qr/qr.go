package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// PNG encodes a join link as a 256px PNG.
func PNG(link string) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// ASCII renders the QR code in a compact form for terminals, two rows per line.
func ASCII(link string) (string, error) {
	code, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = true
	bmp := code.Bitmap()
	if len(bmp)%2 == 1 {
		width := 0
		if len(bmp) > 0 {
			width = len(bmp[0])
		}
		bmp = append(bmp, make([]bool, width))
	}

	var out strings.Builder
	for y := 0; y < len(bmp); y += 2 {
		top := bmp[y]
		bottom := bmp[y+1]
		for x := 0; x < len(top); x++ {
			t := top[x]
			b := bottom[x]
			switch {
			case t && b:
				out.WriteRune('█')
			case t && !b:
				out.WriteRune('▀')
			case !t && b:
				out.WriteRune('▄')
			default:
				out.WriteRune(' ')
			}
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}
