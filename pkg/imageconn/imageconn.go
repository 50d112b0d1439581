// Package imageconn defines the capability interface over the bank-side
// image storage connector. The real connector is an external collaborator;
// this package specifies only its named operations and ships a demo
// implementation selected at startup from configuration.
package imageconn

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Connector fetches check image bytes for a (tenant, image) pair. FetchImage
// returns the raw bytes and their media type. Implementations wrap network
// failures in *extcall.Transient so the caller's retry policy applies.
type Connector interface {
	FetchImage(ctx context.Context, tenantID, imageID string) (data []byte, contentType string, err error)
}

// Demo renders a flat placeholder PNG per image ID so the full token-mint /
// token-consume path can run end to end without a bank connection.
type Demo struct{}

func NewDemo() *Demo {
	return &Demo{}
}

func (d *Demo) FetchImage(_ context.Context, tenantID, imageID string) ([]byte, string, error) {
	img := image.NewGray(image.Rect(0, 0, 600, 270))
	shade := uint8(200)
	for _, b := range []byte(imageID) {
		shade ^= b
	}
	for y := 0; y < 270; y++ {
		for x := 0; x < 600; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("imageconn: encode demo image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}
