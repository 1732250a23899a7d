package client

import (
	"context"
	"encoding/base64"
)

// Image is an encoded image sent to a vision model.
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the image data as standard base64.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// VisionClient sends one multimodal message (instruction text plus one
// image) to a vision-capable chat model and returns the raw text reply.
type VisionClient interface {
	Generate(ctx context.Context, prompt string, img Image) (string, error)
	Name() string
}
