package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func exportCmd(flags *globalFlags) *cobra.Command {
	var start, end int
	var dir string

	cmd := &cobra.Command{
		Use:   "export <stack> [dest]",
		Short: "Write the frames of the stored interval to a new stack file",
		Long: `Exports the original samples of the marked interval in the source format.
--start and --end mark a new interval first, which is also stored. Without
dest the export is written as <name>_trimmed<ext> next to the stack or in
--dir.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setStart, setEnd := cmd.Flags().Changed("start"), cmd.Flags().Changed("end")
			if setStart != setEnd {
				return fmt.Errorf("--start and --end must be given together")
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

			if dir == "" {
				dir = a.cfg.Export.Dir
			}
			dest := sess.ExportPath(dir)
			if len(args) == 2 {
				dest = args[1]
			}

			if err := sess.ExportInterval(dest); err != nil {
				return err
			}
			iv := sess.Interval()
			fmt.Fprintf(cmd.OutOrStdout(), "Exported frames %s (%d frames) to %s\n", iv, iv.Len(), dest)
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "First frame to export (zero-based)")
	cmd.Flags().IntVar(&end, "end", 0, "Last frame to export (inclusive)")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory for the default destination")

	return cmd
}
