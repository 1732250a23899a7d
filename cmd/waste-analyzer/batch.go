package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	wasteanalyzer "github.com/menta2k/waste-analyzer"
	"github.com/menta2k/waste-analyzer/internal/utils"
)

var (
	batchOutFlag       string
	batchWorkersFlag   int
	batchRecursiveFlag bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Analyze every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if !utils.DirExists(dir) {
			return fmt.Errorf("%s is not a directory", dir)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wa, err := newAnalyzer(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		files, err := utils.ListImageFiles(dir, batchRecursiveFlag)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no images found in %s", dir)
		}
		log.Info().Int("files", len(files)).Int("workers", batchWorkersFlag).Msg("Starting batch")

		var (
			failed atomic.Int32
			mu     sync.Mutex
			points int
			items  int
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(batchWorkersFlag, 1))
		for _, f := range files {
			g.Go(func() error {
				// a/x.jpg and b/x.jpg must not share output names
				res, err := wa.ProcessImageFile(ctx, f, utils.MirrorDir(dir, batchOutFlag, f), wasteanalyzer.ProcessOptions{
					PromptContext: contextFlag,
				})
				if err != nil {
					return err
				}
				if res.Error != "" {
					failed.Add(1)
					log.Warn().Str("file", f).Str("error", res.Error).Msg("Analysis failed")
					return nil
				}
				mu.Lock()
				points += res.TotalPoints()
				items += res.TotalItems()
				mu.Unlock()
				ev := log.Info().Str("file", f).Str("kind", res.Kind.String()).Int("items", res.TotalItems())
				if info, err := os.Stat(f); err == nil {
					ev = ev.Str("size", utils.FormatFileSize(info.Size()))
				}
				ev.Msg("Analyzed")
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		log.Info().
			Int("files", len(files)).
			Int32("failed", failed.Load()).
			Int("items", items).
			Int("points", points).
			Str("out", batchOutFlag).
			Msg("Batch complete")
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutFlag, "out", "o", "out", "output directory")
	batchCmd.Flags().IntVarP(&batchWorkersFlag, "workers", "w", 2, "images analyzed concurrently")
	batchCmd.Flags().BoolVarP(&batchRecursiveFlag, "recursive", "r", false, "include subdirectories")
	batchCmd.Flags().StringVarP(&contextFlag, "context", "c", "", "extra context appended to every prompt")
}
