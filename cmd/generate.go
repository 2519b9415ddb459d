package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"chatppt_studio/preview"
)

var (
	generateText    string
	generateSession string
	generateOut     string
	generateHTML    string
	generateNoImage bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [input-file]",
	Short: "Refine, illustrate and optionally preview in one go",
	Args:  cobra.MaximumNArgs(1),
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
		input, err := readInput(generateText, path)
		if err != nil {
			return err
		}
		session := generateSession
		if session == "" {
			session = uuid.NewString()
		}

		res, err := a.engine.Refine(ctx, session, input)
		if err != nil {
			return fmt.Errorf("refine failed: %w", err)
		}
		doc := res.Content

		if !generateNoImage {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			ill, err := p.Run(ctx, doc, session)
			if err != nil {
				return err
			}
			a.logger.Info("illustrated", "session", session, "images", len(ill.Images), "dir", ill.RunDir)
			doc = ill.Document
		}

		if generateHTML != "" {
			page, err := preview.NewRenderer(a.logger, a.cfg.Images.OutputDir).Render(doc, filepath.Dir(generateOut))
			if err != nil {
				return err
			}
			if err := os.WriteFile(generateHTML, []byte(page.HTML), 0o644); err != nil {
				return fmt.Errorf("write preview: %w", err)
			}
			a.logger.Info("preview written", "path", generateHTML, "title", page.Title)
		}
		return writeOutput(generateOut, doc)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateText, "text", "", "input text instead of a file")
	generateCmd.Flags().StringVar(&generateSession, "session", "", "session id, also used as the image run name")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "write the document to this file")
	generateCmd.Flags().StringVar(&generateHTML, "html", "", "also render a self-contained HTML preview to this file")
	generateCmd.Flags().BoolVar(&generateNoImage, "no-images", false, "skip the image pipeline")
	rootCmd.AddCommand(generateCmd)
}
