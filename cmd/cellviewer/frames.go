package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cellviewer/pkg/visualization"
)

func framesCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "frames <stack> <dir>",
		Short: "Save every normalized display frame as an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ext string
			switch format {
			case "png":
				ext = ".png"
			case "jpg", "jpeg":
				ext = ".jpg"
			default:
				return fmt.Errorf("invalid format: %s (must be png or jpg)", format)
			}

			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.load(args[0])
			if err != nil {
				return err
			}

			if err := visualization.SaveFrameSequence(sess, args[1], ext); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d frames to %s\n", sess.Frames(), args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "png", "Image format (png or jpg)")

	return cmd
}
