package commands

import (
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func imageCmd() *cobra.Command {
	var (
		out           string
		width, height int
	)
	cmd := &cobra.Command{
		Use:   "image <session> <view>",
		Short: "Save a JPEG snapshot of one view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[1] + ".jpg"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			query := url.Values{"width": {strconv.Itoa(width)}, "height": {strconv.Itoa(height)}}
			err = api.download(cmd.Context(), f, query, "sessions", args[0], "views", args[1], "image")
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			success.Println("wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <view>.jpg)")
	cmd.Flags().IntVar(&width, "width", 512, "image width")
	cmd.Flags().IntVar(&height, "height", 512, "image height")
	return cmd
}
