package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/skip2/go-qrcode"
)

var ErrInvalidQRRequest = errors.New("invalid qr code request")

// QRRequest is the query of GET /qrcode.
type QRRequest struct {
	Text  string `validate:"min=1,max=512"`
	Scale int    `validate:"min=1,max=32"`
}

type QRService struct {
	validate *validator.Validate
}

func NewQRService() *QRService {
	return &QRService{validate: validator.New()}
}

// SVG renders req.Text with high error correction and no quiet zone.
// Dark modules use currentColor so the code follows the page text color.
func (s *QRService) SVG(req QRRequest) ([]byte, error) {
	err := s.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQRRequest, err)
	}

	code, err := qrcode.New(req.Text, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQRRequest, err)
	}
	code.DisableBorder = true

	bitmap := code.Bitmap()
	size := len(bitmap) * req.Scale

	var d strings.Builder
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fmt.Fprintf(&d, "M%d %dh%dv%dh-%dz", x*req.Scale, y*req.Scale, req.Scale, req.Scale, req.Scale)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="%[1]d" viewBox="0 0 %[1]d %[1]d" shape-rendering="crispEdges">`, size)
	b.WriteString(`<style>.d{fill:currentColor;fill-opacity:.7}</style>`)
	fmt.Fprintf(&b, `<path class="d" d="%s"/></svg>`, d.String())

	return []byte(b.String()), nil
}
