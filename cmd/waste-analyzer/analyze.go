package main

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	wasteanalyzer "github.com/menta2k/waste-analyzer"
)

var (
	contextFlag string
	outFlag     string
	debugFlag   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|url>",
	Short: "Analyze one image and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wa, err := newAnalyzer(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if outFlag == "" {
			res := wa.AnalyzeSource(ctx, args[0], contextFlag)
			return printJSON(res.WithoutCrops())
		}

		res, err := wa.ProcessImageFile(ctx, args[0], outFlag, wasteanalyzer.ProcessOptions{
			PromptContext: contextFlag,
			Debug:         debugFlag,
		})
		if err != nil {
			return err
		}
		log.Info().Str("out", outFlag).Int("items", res.TotalItems()).Msg("Wrote results")
		return printJSON(res.WithoutCrops())
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&contextFlag, "context", "c", "", "extra context appended to the prompt")
	analyzeCmd.Flags().StringVarP(&outFlag, "out", "o", "", "write result JSON and item crops to this directory")
	analyzeCmd.Flags().BoolVar(&debugFlag, "debug", false, "with --out, also write an overlay showing every box")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
