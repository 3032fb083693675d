package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	api       *client
)

func Execute() error {
	root := &cobra.Command{
		Use:           "viewerctl",
		Short:         "Drive a medviewer session from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("VIEWER_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("token required (--token or VIEWER_TOKEN)")
			}
			var err error
			api, err = newClient(cmd.Context(), serverURL, token)
			return err
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "viewer API base URL")
	root.PersistentFlags().StringVarP(&token, "token", "t", "", "JWT used for the API and the data server")

	root.AddCommand(sessionCmd(), loadCmd(), stateCmd(), setCmd(), imageCmd(), watchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err != nil {
		failure.Fprintln(os.Stderr, "error:", err)
	}
	return err
}
