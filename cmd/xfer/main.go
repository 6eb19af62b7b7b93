package main

import (
	"fmt"
	"os"

	"github.com/SpatiumPortae/xfer/cmd/xfer/commands"
	"github.com/SpatiumPortae/xfer/cmd/xfer/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set with ldflags at build time.
var version = "v0.0.0"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "xfer",
		Short:         "xfer fetches files from a remote host over a minimal TCP file-transfer protocol.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(); err != nil {
				return err
			}
			if err := viper.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
				return fmt.Errorf("binding verbose flag: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.xfer-[command].log` in the current directory")

	rootCmd.AddCommand(commands.Get(version))
	rootCmd.AddCommand(commands.Serve(version))
	rootCmd.AddCommand(commands.Config())
	rootCmd.AddCommand(commands.Version(version))
	return rootCmd
}

// Entry point of the application.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
