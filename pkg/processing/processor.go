package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/waste-analyzer/pkg/client"
)

// ErrUnsupportedFormat is returned for data that is not a decodable image.
var ErrUnsupportedFormat = errors.New("image: unknown or unsupported format")

// DefaultMaxDownload caps the size of images fetched by URL.
const DefaultMaxDownload = 25 << 20

// Processor handles image loading and encoding
type Processor struct {
	HTTPClient  *http.Client
	MaxDownload int64
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxDownload: DefaultMaxDownload,
	}
}

// LoadImageFromURL downloads an image and returns its encoded bytes.
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Waste-Analyzer/1.0")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	limit := p.MaxDownload
	if limit <= 0 {
		limit = DefaultMaxDownload
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return data, nil
}

// LoadImage reads an image file and checks that it decodes.
func (p *Processor) LoadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := DetectFormat(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// Decode decodes image bytes, applying EXIF orientation, and reports the
// format name ("jpeg", "png", "gif", "webp").
func Decode(data []byte) (image.Image, string, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, format, nil
	}
	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}
	return nil, "", ErrUnsupportedFormat
}

// DetectFormat reads only the image header.
func DetectFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrUnsupportedFormat
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedFormat
	}
	return format, nil
}

// MIMEType maps a format name to its MIME type.
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extension maps a format name to a file extension without the dot.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case "png", "gif", "webp":
		return strings.ToLower(format)
	default:
		return "jpg"
	}
}

// Encode encodes img. Formats without an encoder here are written as JPEG.
// It returns the MIME type actually produced.
func Encode(img image.Image, format string, quality int) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/webp", nil
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}

// PrepareForModel returns the payload sent to a vision model. Images whose
// long side exceeds maxDim are downscaled and re-encoded as JPEG; smaller
// ones are sent as they are. Percentage boxes stay valid either way.
func PrepareForModel(data []byte, maxDim, quality int) (client.Image, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return client.Image{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return client.Image{}, ErrUnsupportedFormat
	}
	if maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim) {
		return client.Image{MIMEType: MIMEType(format), Data: data}, nil
	}

	img, _, err := Decode(data)
	if err != nil {
		return client.Image{}, err
	}
	b := img.Bounds()
	if b.Dx() >= b.Dy() {
		img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	}
	out, mime, err := Encode(img, "jpeg", quality)
	if err != nil {
		return client.Image{}, fmt.Errorf("encode for model: %w", err)
	}
	return client.Image{MIMEType: mime, Data: out}, nil
}

// SaveFile writes encoded image bytes to path.
func SaveFile(data []byte, path string) error {
	return os.WriteFile(path, data, 0o644)
}
