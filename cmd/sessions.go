package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chatppt_studio/history"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored session histories",
	Long: `Inspect stored session histories. Only the sqlite and postgres backends
keep sessions between runs.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		cat, err := catalog(a)
		if err != nil {
			return err
		}
		infos, err := cat.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMESSAGES\tUPDATED")
		for _, s := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.Messages, s.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		msgs, err := a.engine.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for i, m := range msgs {
			fmt.Printf("--- %d [%s]\n%s\n", i+1, m.Role, m.Content)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		cat, err := catalog(a)
		if err != nil {
			return err
		}
		if err := cat.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.logger.Info("session deleted", "session", args[0])
		return nil
	},
}

func catalog(a *app) (history.Catalog, error) {
	cat, ok := a.store.(history.Catalog)
	if !ok {
		return nil, errors.New("history backend cannot list sessions")
	}
	return cat, nil
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}
