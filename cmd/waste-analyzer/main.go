package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	wasteanalyzer "github.com/menta2k/waste-analyzer"
	"github.com/menta2k/waste-analyzer/internal/backend"
	"github.com/menta2k/waste-analyzer/internal/config"
	"github.com/menta2k/waste-analyzer/internal/logging"
	"github.com/menta2k/waste-analyzer/internal/utils"
)

// CLI flags
var (
	configFlag   string
	backendFlag  string
	modelFlag    string
	modelURLFlag string
	logLevelFlag string
	jsonLogsFlag bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "waste-analyzer",
	Short: "Identify waste items in photos and explain how to dispose of them",
	Long: `Waste Analyzer sends a photo to a vision model, normalizes whatever the
model answers into a list of waste items with disposal instructions, points
and a CO2 impact estimate, and crops every item out of the photo.

Examples:
  waste-analyzer analyze bin.jpg
  waste-analyzer analyze https://example.com/litter.png --context "found on the beach" --out ./out --debug
  waste-analyzer batch ./photos --out ./results --workers 4
  waste-analyzer serve --addr :8080
  waste-analyzer --backend ollama --model llava:13b analyze bin.jpg`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// log level is applied once config is loaded; this covers config errors
		logging.Init(logLevelFlag, jsonLogsFlag)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "config file (default "+config.GetConfigPath()+")")
	pf.StringVar(&backendFlag, "backend", "", "vision backend: gemini, ollama, openai or llamacpp")
	pf.StringVarP(&modelFlag, "model", "m", "", "model name")
	pf.StringVar(&modelURLFlag, "model-url", "", "backend base URL")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&jsonLogsFlag, "json-logs", false, "write logs as JSON")

	rootCmd.AddCommand(analyzeCmd, batchCmd, serveCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig returns the validated effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := loadRawConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadRawConfig reads the config file (if any), then the environment, then
// command line flags, each overriding the previous.
func loadRawConfig() (*config.Config, error) {
	path := configFlag
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg := config.Default()
	if utils.FileExists(path) {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Debug().Str("path", path).Msg("Loaded config")
	} else if configFlag != "" {
		return nil, fmt.Errorf("config file %s not found", configFlag)
	}
	cfg.ApplyEnv()

	if backendFlag != "" {
		cfg.Model.Backend = backendFlag
	}
	if modelFlag != "" {
		cfg.Model.Name = modelFlag
	}
	if modelURLFlag != "" {
		cfg.Model.BaseURL = modelURLFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if jsonLogsFlag {
		cfg.Log.JSON = true
	}
	logging.Init(cfg.Log.Level, cfg.Log.JSON)
	return cfg, nil
}

// newAnalyzer builds the analyzer for the configured backend.
func newAnalyzer(ctx context.Context, cfg *config.Config) (*wasteanalyzer.WasteAnalyzer, error) {
	vc, err := backend.New(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Model.Backend, err)
	}
	log.Debug().Str("backend", vc.Name()).Msg("Vision client ready")
	return wasteanalyzer.NewWithConfig(vc, cfg.Analysis), nil
}
