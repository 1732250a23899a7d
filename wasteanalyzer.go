// Package wasteanalyzer identifies waste items in photos with a vision
// model and reports how to dispose of them.
//
// A vision model is asked for a fixed JSON document describing every waste
// item it sees. Whatever comes back (clean JSON, fenced or commented JSON,
// or free prose) is normalized into one of three result shapes: no garbage
// found, a single item, or several items. Each item carries a CO2 impact
// level estimated from its object and material, and in the multi-item
// shape a JPEG/PNG/WebP crop of the item cut from the source image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"encoding/json"
//		"log"
//		"os"
//
//		wasteanalyzer "github.com/menta2k/waste-analyzer"
//		"github.com/menta2k/waste-analyzer/pkg/gemini"
//	)
//
//	func main() {
//		ctx := context.Background()
//		vc, err := gemini.NewClient(ctx, os.Getenv("GEMINI_API_KEY"), "", "")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		wa := wasteanalyzer.New(vc)
//		res := wa.AnalyzeSource(ctx, "bin.jpg", "found on the beach")
//		json.NewEncoder(os.Stdout).Encode(res)
//	}
//
// The package consists of these components:
//
//  1. Detection (pkg/detection): prompt, model call and the never-failing Analyze
//  2. Normalize (pkg/normalize): turns any model reply into a result shape
//  3. Estimate (pkg/estimate): CO2 level and fallback points per item
//  4. Cropper (pkg/cropper): per-item crops from percentage boxes
//  5. Backends (pkg/gemini, pkg/ollama, pkg/openai): vision model clients
//
// Analysis never returns an error. A failure anywhere yields a single item
// named "Error" whose description holds the cause.
package wasteanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/waste-analyzer/internal/utils"
	"github.com/menta2k/waste-analyzer/pkg/client"
	"github.com/menta2k/waste-analyzer/pkg/detection"
	"github.com/menta2k/waste-analyzer/pkg/processing"
	"github.com/menta2k/waste-analyzer/pkg/types"
)

// Version of the waste analyzer library
const Version = "1.0.0"

// WasteAnalyzer provides a high-level interface over the detector
type WasteAnalyzer struct {
	detector  *detection.Detector
	processor *processing.Processor
}

// New creates a new WasteAnalyzer with default configuration
func New(vc client.VisionClient) *WasteAnalyzer {
	return NewWithConfig(vc, detection.DefaultConfig())
}

// NewWithConfig creates a new WasteAnalyzer with custom configuration
func NewWithConfig(vc client.VisionClient, cfg detection.Config) *WasteAnalyzer {
	return &WasteAnalyzer{
		detector:  detection.NewDetectorWithConfig(vc, cfg),
		processor: processing.NewProcessor(),
	}
}

// Detector returns the underlying detector, e.g. to serve it over HTTP.
func (wa *WasteAnalyzer) Detector() *detection.Detector {
	return wa.detector
}

// Analyze runs one request through the detector.
func (wa *WasteAnalyzer) Analyze(ctx context.Context, req detection.Request) types.AnalysisResult {
	return wa.detector.Analyze(ctx, req)
}

// AnalyzeSource analyzes a local file or an http(s) URL.
func (wa *WasteAnalyzer) AnalyzeSource(ctx context.Context, source, promptContext string) types.AnalysisResult {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return wa.detector.Analyze(ctx, detection.Request{ImageURL: source, PromptContext: promptContext})
	}
	data, err := wa.processor.LoadImage(source)
	if err != nil {
		return detection.ErrorResult(fmt.Errorf("failed to load image: %w", err))
	}
	return wa.detector.Analyze(ctx, detection.Request{Image: data, PromptContext: promptContext})
}

// AnalyzeReader analyzes an encoded image read from r.
func (wa *WasteAnalyzer) AnalyzeReader(ctx context.Context, r io.Reader, promptContext string) types.AnalysisResult {
	data, err := io.ReadAll(r)
	if err != nil {
		return detection.ErrorResult(fmt.Errorf("failed to read image: %w", err))
	}
	return wa.detector.Analyze(ctx, detection.Request{Image: data, PromptContext: promptContext})
}

// ProcessOptions controls ProcessImageFile.
type ProcessOptions struct {
	PromptContext string
	// Debug also writes the source image with every box drawn on it.
	Debug bool
}

// ProcessImageFile analyzes a file or URL and writes the outputs to
// outputDir: <name>.json with the result, one file per cropped item and,
// with Debug, <name>_overlay.png. The returned error only covers writing
// outputs; analysis failures are reported inside the result.
func (wa *WasteAnalyzer) ProcessImageFile(ctx context.Context, input, outputDir string, opts ProcessOptions) (types.AnalysisResult, error) {
	res := wa.AnalyzeSource(ctx, input, opts.PromptContext)

	if err := utils.EnsureDir(outputDir); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}

	// crops are written as files, keep the JSON small
	data, err := json.MarshalIndent(res.WithoutCrops(), "", "  ")
	if err != nil {
		return res, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(utils.GenerateOutputFilename(input, outputDir, "", "", "json"), data, 0o644); err != nil {
		return res, fmt.Errorf("failed to write result: %w", err)
	}

	for i, item := range res.DetectedItems() {
		if item.CroppedImage == nil {
			continue
		}
		ext := strings.TrimPrefix(item.CroppedImage.MIMEType, "image/")
		suffix := fmt.Sprintf("_%d_%s", i, utils.SanitizeFilename(item.Object))
		path := utils.GenerateOutputFilename(input, outputDir, "", suffix, processing.Extension(ext))
		if err := processing.SaveFile(item.CroppedImage.Data, path); err != nil {
			return res, fmt.Errorf("failed to save crop %d: %w", i, err)
		}
	}

	if opts.Debug && res.Error == "" {
		if err := wa.writeOverlay(ctx, input, outputDir, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (wa *WasteAnalyzer) writeOverlay(ctx context.Context, input, outputDir string, res types.AnalysisResult) error {
	items := res.DetectedItems()
	if len(items) == 0 {
		return nil
	}
	data, err := wa.processor.LoadImageSmart(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to reload image for overlay: %w", err)
	}
	img, _, err := processing.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode image for overlay: %w", err)
	}
	out, _, err := processing.Encode(processing.DrawOverlay(img, items), "png", 0)
	if err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return processing.SaveFile(out, utils.GenerateOutputFilename(input, outputDir, "", "_overlay", "png"))
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
