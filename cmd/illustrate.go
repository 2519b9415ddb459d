package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	illustrateRun     string
	illustrateOut     string
	illustrateMapPath string
)

var illustrateCmd = &cobra.Command{
	Use:   "illustrate [markdown-file]",
	Short: "Find or synthesize one image per slide and embed it",
	Long: `Asks the advisor model for an image query per slide, searches and scores
candidates, falls back to image synthesis below the threshold, and prints the
document with image lines inserted under the matching "## " headings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		var path string
		if len(args) == 1 {
			path = args[0]
		}
		doc, err := readInput("", path)
		if err != nil {
			return err
		}
		p, err := a.pipeline()
		if err != nil {
			return err
		}
		res, err := p.Run(ctx, doc, illustrateRun)
		if err != nil {
			return err
		}
		if illustrateMapPath != "" {
			data, err := json.MarshalIndent(res.Images, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(illustrateMapPath, data, 0o644); err != nil {
				return fmt.Errorf("write image map: %w", err)
			}
		}
		return writeOutput(illustrateOut, res.Document)
	},
}

func init() {
	illustrateCmd.Flags().StringVar(&illustrateRun, "run", "", "run name, images go to <output_dir>/<run> (random when empty)")
	illustrateCmd.Flags().StringVarP(&illustrateOut, "out", "o", "", "write the illustrated document to this file")
	illustrateCmd.Flags().StringVar(&illustrateMapPath, "map", "", "also write the slide to image map as JSON")
	rootCmd.AddCommand(illustrateCmd)
}
