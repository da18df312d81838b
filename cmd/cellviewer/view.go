package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cellviewer/internal/tui"
	"cellviewer/pkg/browser"
	"cellviewer/pkg/codec"
)

func viewCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view [path]",
		Short: "Open the terminal viewer on a stack file or a folder of stacks",
		Long: `Opens the interactive viewer. With a folder, the stacks in it are listed
and n/p step through them. With a file, its folder is browsed starting at
that file. Without a path the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			var b *browser.Browser
			switch {
			case info.IsDir():
				b, err = browser.Open(path)
			case codec.IsStackFile(path):
				b, err = browser.At(path)
			default:
				return fmt.Errorf("%s is not a .npy, .tif or .tiff file", path)
			}
			if err != nil {
				return err
			}

			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			a.log.Info("viewer started", "dir", b.Dir(), "stacks", b.Len())
			return tui.Run(tui.Options{
				Session:          a.newSession(),
				Browser:          b,
				PlaybackInterval: a.cfg.PlaybackInterval(),
				ExportDir:        a.cfg.Export.Dir,
				Logger:           a.log,
			})
		},
	}
}
