package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	policy     string
	verbose    bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "cellviewer",
		Short:         "Browse microscopy image stacks, mark frame intervals and export them",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&flags.policy, "policy", "", "Normalization policy override (minmax, percentile, auto)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(viewCmd(&flags))
	rootCmd.AddCommand(infoCmd(&flags))
	rootCmd.AddCommand(intervalCmd(&flags))
	rootCmd.AddCommand(exportCmd(&flags))
	rootCmd.AddCommand(framesCmd(&flags))
	rootCmd.AddCommand(configCmd(&flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
