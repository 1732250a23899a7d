package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/waste-analyzer/pkg/client"
	"github.com/menta2k/waste-analyzer/pkg/cropper"
	"github.com/menta2k/waste-analyzer/pkg/estimate"
	"github.com/menta2k/waste-analyzer/pkg/normalize"
	"github.com/menta2k/waste-analyzer/pkg/processing"
	"github.com/menta2k/waste-analyzer/pkg/types"
)

// DefaultPrompt is the instruction block sent with every image.
const DefaultPrompt = `You are a waste sorting assistant. Analyze the image and identify ALL visible waste/garbage items.

For EACH detected waste item, provide bounding box coordinates as percentages of image dimensions (0-100 scale).

CRITICAL: You must respond with ONLY valid JSON in this exact format:

For SINGLE item:
{
  "object": "name of the item",
  "material": "main material type",
  "disposal_instructions": "how to dispose properly",
  "points_earned": 5,
  "description_info": "brief environmental impact note",
  "bbox": [x_percent, y_percent, width_percent, height_percent]
}

For MULTIPLE items (2 or more):
{
  "items": [
    {
      "object": "name of item 1",
      "material": "main material type",
      "disposal_instructions": "how to dispose properly",
      "points_earned": 5,
      "description_info": "brief environmental impact note",
      "bbox": [x_percent, y_percent, width_percent, height_percent]
    },
    {
      "object": "name of item 2",
      "material": "main material type",
      "disposal_instructions": "how to dispose properly",
      "points_earned": 5,
      "description_info": "brief environmental impact note",
      "bbox": [x_percent, y_percent, width_percent, height_percent]
    }
  ]
}

Bounding box format: [x, y, width, height] where all values are percentages (0-100) of image dimensions.
- x: left edge percentage from left of image
- y: top edge percentage from top of image
- width: box width as percentage of image width
- height: box height as percentage of image height

If no waste item is found, return: {"object": "No waste found", "material": "N/A", "disposal_instructions": "N/A", "points_earned": 0, "description_info": "No waste detected", "bbox": [0, 0, 0, 0]}`

const contextSeparator = "\n\nAdditional context: "

const (
	DefaultTimeout       = 90 * time.Second
	DefaultMaxDimension  = 1536
	DefaultUploadQuality = 85
)

// ErrNoImage is returned when a request carries neither bytes nor a URL.
var ErrNoImage = errors.New("neither image data nor image URL provided")

// Config controls one Detector.
type Config struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxDimension caps the long side of the image sent to the model.
	// Zero disables downscaling.
	MaxDimension  int    `yaml:"max_dimension" json:"max_dimension"`
	UploadQuality int    `yaml:"upload_quality" json:"upload_quality"`
	Prompt        string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	Heuristics normalize.Heuristics `yaml:"heuristics" json:"heuristics"`
	Crop       cropper.Config       `yaml:"crop" json:"crop"`
}

// DefaultConfig returns the default detector configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		MaxDimension:  DefaultMaxDimension,
		UploadQuality: DefaultUploadQuality,
		Prompt:        DefaultPrompt,
		Heuristics:    normalize.Default(),
		Crop:          cropper.DefaultConfig(),
	}
}

// Request is one image to analyze. Image takes precedence over ImageURL;
// ImageURL is always echoed back in the result.
type Request struct {
	Image         []byte
	MIMEType      string
	ImageURL      string
	PromptContext string
}

// Detector analyzes waste images with a vision model.
type Detector struct {
	client     client.VisionClient
	config     Config
	normalizer *normalize.Normalizer
	cropper    *cropper.Cropper
	processor  *processing.Processor
}

// NewDetector creates a detector with default configuration
func NewDetector(vc client.VisionClient) *Detector {
	return NewDetectorWithConfig(vc, DefaultConfig())
}

// NewDetectorWithConfig creates a detector with custom configuration
func NewDetectorWithConfig(vc client.VisionClient, config Config) *Detector {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxDimension < 0 {
		config.MaxDimension = 0
	}
	if config.UploadQuality <= 0 || config.UploadQuality > 100 {
		config.UploadQuality = DefaultUploadQuality
	}
	if strings.TrimSpace(config.Prompt) == "" {
		config.Prompt = DefaultPrompt
	}
	return &Detector{
		client:     vc,
		config:     config,
		normalizer: normalize.New(config.Heuristics),
		cropper:    cropper.NewWithConfig(config.Crop),
		processor:  processing.NewProcessor(),
	}
}

// SetProcessor replaces the loader used for ImageURL requests.
func (d *Detector) SetProcessor(p *processing.Processor) {
	d.processor = p
}

// Prompt returns the full instruction text for an optional user context.
func (d *Detector) Prompt(promptContext string) string {
	promptContext = strings.TrimSpace(promptContext)
	if promptContext == "" {
		return d.config.Prompt
	}
	return d.config.Prompt + contextSeparator + promptContext
}

// Analyze runs one image through the model and returns a normalized result.
// It never fails: any error yields ErrorResult.
func (d *Detector) Analyze(ctx context.Context, req Request) types.AnalysisResult {
	start := time.Now()
	res, err := d.analyze(ctx, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("image_url", req.ImageURL).
			Dur("duration", time.Since(start)).
			Msg("Analysis failed")
		res = ErrorResult(err)
	} else {
		log.Info().
			Str("kind", res.Kind.String()).
			Int("items", res.TotalItems()).
			Int("points", res.TotalPoints()).
			Dur("duration", time.Since(start)).
			Msg("Analysis complete")
	}
	res.ImageURL = req.ImageURL
	return res
}

func (d *Detector) analyze(ctx context.Context, req Request) (types.AnalysisResult, error) {
	if d.client == nil {
		return types.AnalysisResult{}, fmt.Errorf("no vision client configured")
	}
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	data := req.Image
	if len(data) == 0 {
		if req.ImageURL == "" {
			return types.AnalysisResult{}, ErrNoImage
		}
		fetched, err := d.processor.LoadImageFromURL(ctx, req.ImageURL)
		if err != nil {
			return types.AnalysisResult{}, d.wrap(ctx, err)
		}
		data = fetched
	}

	payload, err := d.payload(data, req.MIMEType)
	if err != nil {
		return types.AnalysisResult{}, err
	}

	log.Debug().
		Str("backend", d.client.Name()).
		Str("mime", payload.MIMEType).
		Int("bytes", len(payload.Data)).
		Msg("Sending image to model")

	raw, err := d.client.Generate(ctx, d.Prompt(req.PromptContext), payload)
	if err != nil {
		return types.AnalysisResult{}, d.wrap(ctx, err)
	}

	res := d.normalizer.Normalize(raw)
	switch res.Kind {
	case types.KindSingle:
		res.Item.Co2Value = estimate.EstimateItem(*res.Item)
	case types.KindMultiple:
		estimate.Attach(res.Items)
		res.Items = d.cropper.CropMany(ctx, data, res.Items)
	}
	return res, nil
}

// payload prepares the model upload. Data the decoders do not understand is
// still sent as is when the caller vouched for an image MIME type.
func (d *Detector) payload(data []byte, mimeType string) (client.Image, error) {
	img, err := processing.PrepareForModel(data, d.config.MaxDimension, d.config.UploadQuality)
	if err == nil {
		return img, nil
	}
	if errors.Is(err, processing.ErrUnsupportedFormat) && strings.HasPrefix(mimeType, "image/") {
		log.Debug().Str("mime", mimeType).Msg("Undecodable image, sending raw bytes")
		return client.Image{MIMEType: mimeType, Data: data}, nil
	}
	return client.Image{}, fmt.Errorf("prepare image: %w", err)
}

func (d *Detector) wrap(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("analysis timed out after %s: %w", d.config.Timeout, err)
	}
	return err
}

// ErrorResult is the degraded single-item result reported for a failed
// analysis.
func ErrorResult(err error) types.AnalysisResult {
	box := types.FullFrame
	res := types.Single(types.DetectedItem{
		Object:               "Error",
		Material:             "Unknown",
		DisposalInstructions: "Analysis failed due to error",
		PointsEarned:         0,
		Description:          err.Error(),
		BoundingBox:          &box,
		Co2Value:             types.Co2Unknown,
	})
	res.Error = err.Error()
	return res
}
