package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cellviewer/pkg/interval"
)

func infoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <stack>",
		Short: "Print stack dimensions, per-channel statistics and the stored interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.load(args[0])
			if err != nil {
				return err
			}
			sum := sess.Summary()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "=== Stack ===")
			fmt.Fprintf(out, "  Path:     %s\n", sum.Path)
			fmt.Fprintf(out, "  Format:   %s (%s)\n", sum.Format, sum.Layout)
			fmt.Fprintf(out, "  Frames:   %d\n", sum.Frames)
			fmt.Fprintf(out, "  Size:     %dx%d\n", sum.Width, sum.Height)
			fmt.Fprintf(out, "  Channels: %d\n", sum.Channels)
			fmt.Fprintf(out, "  DType:    %s\n", sum.DType)
			fmt.Fprintf(out, "  Display:  %s\n", sess.Policy())

			fmt.Fprintln(out, "\n=== Channels ===")
			for c := 0; c < sum.Channels; c++ {
				st, err := sess.ChannelStats(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %d: min %g  max %g  mean %.3f  stddev %.3f\n", c, st.Min, st.Max, st.Mean, st.StdDev)
			}

			fmt.Fprintln(out, "\n=== Interval ===")
			fmt.Fprintf(out, "  Sidecar:  %s\n", interval.NewStore(a.cfg.Interval.SidecarSuffix).PathFor(sum.Path))
			iv := sess.Interval()
			if iv.Complete() {
				fmt.Fprintf(out, "  Frames:   %s (%d frames)\n", iv, iv.Len())
			} else {
				fmt.Fprintln(out, "  Frames:   not set")
			}
			if err := sess.SidecarError(); err != nil {
				fmt.Fprintf(out, "  Problem:  %v\n", err)
			}
			return nil
		},
	}
}
