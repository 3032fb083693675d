package commands

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"medviewer-be/internal/dto"
	"medviewer-be/pkg/store"

	"github.com/spf13/cobra"
)

func loadCmd() *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "load <session> <item>...",
		Short: "Load data server items into a session, one after the other",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			for _, item := range args[1:] {
				var res dto.LoadDatasetResponse
				err := api.call(cmd.Context(), http.MethodPost, dto.LoadDatasetRequest{ItemID: item}, &res, "sessions", sessionID, "datasets")
				if err != nil {
					return fmt.Errorf("load %s: %w", item, err)
				}
				muted.Printf("%s: %s\n", item, res.Status)
				// Only one load runs at a time, so later items have to wait anyway.
				if !wait && len(args) == 2 {
					continue
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err = waitLoaded(ctx, sessionID, item)
				cancel()
				if err != nil {
					return fmt.Errorf("load %s: %w", item, err)
				}
				success.Printf("%s: displayed\n", item)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait until the item is displayed")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for each item")
	return cmd
}

func waitLoaded(ctx context.Context, sessionID, item string) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		var st dto.SessionStateResponse
		if err := api.call(ctx, http.MethodGet, nil, &st, "sessions", sessionID, "state"); err != nil {
			return err
		}
		if !st.Busy {
			if displayed(st.State[store.KeyDisplayed], item) {
				return nil
			}
			return fmt.Errorf("load finished without displaying the item")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func displayed(v interface{}, item string) bool {
	list, _ := v.([]interface{})
	return slices.ContainsFunc(list, func(e interface{}) bool { return e == item })
}
