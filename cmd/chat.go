package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to a session, using its whole history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatSession == "" {
			return errors.New("--session is required")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		reply, err := a.engine.Chat(ctx, chatSession, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return writeOutput("", reply)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id")
	rootCmd.AddCommand(chatCmd)
}
