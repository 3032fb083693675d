package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"medviewer-be/internal/dto"

	"github.com/spf13/cobra"
)

func stateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "state <session>",
		Short: "Print the shared state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st dto.SessionStateResponse
			if err := api.call(cmd.Context(), http.MethodGet, nil, &st, "sessions", args[0], "state"); err != nil {
				return err
			}
			if asJSON {
				raw, err := json.MarshalIndent(st.State, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
				return nil
			}
			printState(st.State)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func printState(state map[string]interface{}) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, _ := json.Marshal(state[k])
		keyName.Printf("%-24s", k)
		fmt.Println(string(raw))
	}
}

func setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change layout, cursor or color mapping of a session",
	}

	boolArg := func(s string) (*bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return &b, nil
	}

	obliques := &cobra.Command{
		Use:   "obliques <session> <true|false>",
		Short: "Show or hide the cursor lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := boolArg(args[1])
			if err != nil {
				return err
			}
			return api.call(cmd.Context(), http.MethodPut, dto.ObliquesRequest{Visible: v}, nil, "sessions", args[0], "layout", "obliques")
		},
	}

	quad := &cobra.Command{
		Use:   "quad <session> <true|false>",
		Short: "Switch between the quad layout and one view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := boolArg(args[1])
			if err != nil {
				return err
			}
			return api.call(cmd.Context(), http.MethodPut, dto.QuadViewRequest{Enabled: v}, nil, "sessions", args[0], "layout", "quad")
		},
	}

	fullscreen := &cobra.Command{
		Use:   "fullscreen <session> [view]",
		Short: "Extend one view over the layout; no view returns to quad",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.FullscreenRequest{}
			if len(args) == 2 {
				req.View = args[1]
			}
			return api.call(cmd.Context(), http.MethodPut, req, nil, "sessions", args[0], "layout", "fullscreen")
		},
	}

	windowLevel := &cobra.Command{
		Use:   "window <session> <min> <max>",
		Short: "Map the scalar range [min, max] to gray",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			min, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return err
			}
			max, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return err
			}
			return api.call(cmd.Context(), http.MethodPut, dto.WindowLevelRequest{Min: &min, Max: &max}, nil, "sessions", args[0], "window-level")
		},
	}

	var datasetID string
	preset := &cobra.Command{
		Use:   "preset <session> <name>",
		Short: "Apply a volume rendering preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.call(cmd.Context(), http.MethodPut, dto.PresetRequest{Name: args[1], DatasetID: datasetID}, nil, "sessions", args[0], "preset")
		},
	}
	preset.Flags().StringVar(&datasetID, "dataset", "", "only this dataset (default all volumes)")

	slider := &cobra.Command{
		Use:   "slice <session> <view> <index>",
		Short: "Move a slice view to a slice index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[2])
			if err != nil {
				return err
			}
			return api.call(cmd.Context(), http.MethodPut, dto.SliderRequest{Value: &idx}, nil, "sessions", args[0], "views", args[1], "slider")
		},
	}

	cmd.AddCommand(obliques, quad, fullscreen, windowLevel, preset, slider)
	return cmd
}
