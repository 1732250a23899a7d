package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/waste-analyzer/pkg/processing"
	"github.com/menta2k/waste-analyzer/pkg/types"
)

// ErrInvalidBox is returned for boxes with no area or non-finite values.
var ErrInvalidBox = errors.New("invalid bounding box")

// DefaultQuality is the JPEG/WebP quality of crops.
const DefaultQuality = 90

// Config holds cropping parameters
type Config struct {
	Quality int `yaml:"quality" json:"quality"`
	// Workers bounds concurrent crops in CropMany. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
	// Padding grows every box by this many percentage points on each side.
	Padding float64 `yaml:"padding" json:"padding"`
}

// DefaultConfig returns the default cropping configuration
func DefaultConfig() Config {
	return Config{Quality: DefaultQuality}
}

// Cropper cuts items out of a source image by their percentage boxes.
type Cropper struct {
	config Config
}

// New creates a cropper with default configuration
func New() *Cropper {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a cropper with custom configuration
func NewWithConfig(config Config) *Cropper {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.Padding < 0 {
		config.Padding = 0
	}
	return &Cropper{config: config}
}

// Crop decodes data and returns the region under box, encoded in the
// source format.
func (c *Cropper) Crop(data []byte, box types.BoundingBox) (*types.EncodedImage, error) {
	if !box.Valid() {
		return nil, ErrInvalidBox
	}
	img, format, err := processing.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	return c.CropImage(img, format, box)
}

// CropImage crops an already decoded image. format selects the encoder.
func (c *Cropper) CropImage(img image.Image, format string, box types.BoundingBox) (*types.EncodedImage, error) {
	if !box.Valid() {
		return nil, ErrInvalidBox
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("source image is empty")
	}

	rect := processing.PixelRect(c.pad(box), b.Dx(), b.Dy()).Add(b.Min)
	out, mime, err := processing.Encode(imaging.Crop(img, rect), format, c.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return &types.EncodedImage{MIMEType: mime, Data: out}, nil
}

// CropMany returns a copy of items with CroppedImage set for every item
// whose box could be cropped. The source is decoded once. An item that fails
// keeps a nil crop and does not affect the others. If data cannot be
// decoded at all, items are returned without crops.
func (c *Cropper) CropMany(ctx context.Context, data []byte, items []types.DetectedItem) []types.DetectedItem {
	out := make([]types.DetectedItem, len(items))
	copy(out, items)
	if len(out) == 0 {
		return out
	}

	img, format, err := processing.Decode(data)
	if err != nil {
		log.Warn().Err(err).Int("items", len(items)).Msg("Cannot decode source image, skipping crops")
		return out
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for i := range out {
		if out[i].BoundingBox == nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			crop, err := c.CropImage(img, format, *out[i].BoundingBox)
			if err != nil {
				log.Warn().
					Err(err).
					Int("index", i).
					Str("object", out[i].Object).
					Msg("Crop failed")
				return nil
			}
			// Each goroutine owns out[i].
			out[i].CroppedImage = crop
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Cropper) pad(box types.BoundingBox) types.BoundingBox {
	if c.config.Padding == 0 {
		return box.Clamp()
	}
	p := c.config.Padding
	return types.BoundingBox{X: box.X - p, Y: box.Y - p, W: box.W + 2*p, H: box.H + 2*p}.Clamp()
}
