package commands

import (
	"fmt"
	"net/http"

	"medviewer-be/internal/dto"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open or close viewer sessions",
	}

	open := &cobra.Command{
		Use:   "open",
		Short: "Open a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res dto.CreateSessionResponse
			if err := api.call(cmd.Context(), http.MethodPost, nil, &res, "sessions"); err != nil {
				return err
			}
			fmt.Println(res.ID)
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <session>",
		Short: "Close a session and drop its datasets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.call(cmd.Context(), http.MethodDelete, nil, nil, "sessions", args[0]); err != nil {
				return err
			}
			success.Println("closed", args[0])
			return nil
		},
	}

	cmd.AddCommand(open, closeCmd)
	return cmd
}
