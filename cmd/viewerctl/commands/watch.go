package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func watchCmd() *cobra.Command {
	var showRenders bool
	cmd := &cobra.Command{
		Use:   "watch <session>",
		Short: "Follow state changes and events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), api.wsURL(args[0], token), nil)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
			}()

			muted.Fprintln(os.Stderr, "watching", args[0])
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				var f frame
				if err := json.Unmarshal(raw, &f); err != nil {
					failure.Println("malformed frame:", string(raw))
					continue
				}
				printFrame(f, showRenders)
			}
		},
	}
	cmd.Flags().BoolVar(&showRenders, "renders", false, "also print redraw notices")
	return cmd
}

func printFrame(f frame, showRenders bool) {
	stamp := muted.Sprint(time.Now().Format("15:04:05.000"))
	switch f.Type {
	case "state":
		var delta map[string]interface{}
		_ = json.Unmarshal(f.Data, &delta)
		for k, v := range delta {
			raw, _ := json.Marshal(v)
			fmt.Printf("%s %s = %s\n", stamp, keyName.Sprint(k), raw)
		}
	case "event":
		var evt struct {
			Type    string                 `json:"type"`
			Payload map[string]interface{} `json:"payload"`
		}
		_ = json.Unmarshal(f.Data, &evt)
		label := success.Sprint(evt.Type)
		if strings.HasSuffix(evt.Type, "_FAILED") {
			label = failure.Sprint(evt.Type)
		}
		fmt.Printf("%s %s %v\n", stamp, label, evt.Payload)
	case "render":
		if showRenders {
			fmt.Printf("%s %s %s\n", stamp, muted.Sprint("redraw"), f.Data)
		}
	case "error":
		fmt.Printf("%s %s %s\n", stamp, failure.Sprint("error"), f.Data)
	default:
		fmt.Printf("%s %s %s\n", stamp, f.Type, f.Data)
	}
}
