package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/waste-analyzer/internal/history"
	"github.com/menta2k/waste-analyzer/internal/server"
	"github.com/menta2k/waste-analyzer/internal/storage"
	"github.com/menta2k/waste-analyzer/pkg/processing"
)

var (
	addrFlag      string
	noHistoryFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addrFlag != "" {
			cfg.Server.Addr = addrFlag
		}
		ctx := cmd.Context()

		wa, err := newAnalyzer(ctx, cfg)
		if err != nil {
			return err
		}
		if !cfg.Server.AllowPrivateFetch {
			wa.Detector().SetProcessor(processing.NewPublicProcessor())
		}
		opts := server.Options{
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}

		if !noHistoryFlag {
			store, err := history.Open(ctx, cfg.History.Driver, cfg.History.DSN)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			opts.Store = store
			log.Info().Str("driver", cfg.History.Driver).Msg("Scan history enabled")
		}

		if cfg.Storage.Enabled {
			images, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			opts.Images = images
			log.Info().Str("endpoint", cfg.Storage.Endpoint).Str("bucket", cfg.Storage.Bucket).Msg("Image storage enabled")
		}

		return server.Run(ctx, cfg.Server.Addr, server.NewRouter(wa.Detector(), opts), cfg.Server.RequestTimeout)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "do not record scans")
}
