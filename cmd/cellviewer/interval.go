package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cellviewer/pkg/interval"
)

func intervalCmd(flags *globalFlags) *cobra.Command {
	var start, end int
	var remove bool

	cmd := &cobra.Command{
		Use:   "interval <stack>",
		Short: "Show, set or clear the stored frame interval of a stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setStart, setEnd := cmd.Flags().Changed("start"), cmd.Flags().Changed("end")
			if setStart != setEnd {
				return fmt.Errorf("--start and --end must be given together")
			}
			if remove && setStart {
				return fmt.Errorf("--clear cannot be combined with --start/--end")
			}

			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			store := interval.NewStore(a.cfg.Interval.SidecarSuffix)
			if remove {
				if err := store.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.PathFor(args[0]))
				return nil
			}

			sess, err := a.load(args[0])
			if err != nil {
				return err
			}

			if setStart {
				// The given range replaces the stored one rather than merging with it
				sess.ClearInterval()
				if err := sess.MarkStart(start); err != nil {
					return err
				}
				if err := sess.MarkEnd(end); err != nil {
					return err
				}
			}

			iv := sess.Interval()
			if !iv.Complete() {
				fmt.Fprintln(cmd.OutOrStdout(), "Interval not set")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interval %s (%d of %d frames) in %s\n", iv, iv.Len(), sess.Frames(), store.PathFor(args[0]))
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "First frame of the interval (zero-based)")
	cmd.Flags().IntVar(&end, "end", 0, "Last frame of the interval (inclusive)")
	cmd.Flags().BoolVar(&remove, "clear", false, "Remove the stored interval")

	return cmd
}
