package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	refineText    string
	refineSession string
	refineOut     string
)

var refineCmd = &cobra.Command{
	Use:   "refine [input-file]",
	Short: "Turn input into a slide outline through write/critique rounds",
	Long: `Reads the input from --text, the given file, or stdin, runs the configured
number of critique rounds plus one final write, and prints the outline.
The result is stored in the session history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefine,
}

func init() {
	refineCmd.Flags().StringVar(&refineText, "text", "", "input text instead of a file")
	refineCmd.Flags().StringVar(&refineSession, "session", "", "session id (random when empty)")
	refineCmd.Flags().StringVarP(&refineOut, "out", "o", "", "write the outline to this file instead of stdout")
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
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
	input, err := readInput(refineText, path)
	if err != nil {
		return err
	}
	session := refineSession
	if session == "" {
		session = uuid.NewString()
	}

	res, err := a.engine.Refine(ctx, session, input)
	if err != nil {
		return fmt.Errorf("refine failed: %w", err)
	}
	a.logger.Info("outline ready", "session", res.SessionID, "rounds", res.Round, "critiques", res.Critiques)
	return writeOutput(refineOut, res.Content)
}
