// Package cmd assembles the barkwatch command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/barkwatch/barkwatch/cmd/devices"
	"github.com/barkwatch/barkwatch/cmd/realtime"
	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/logging"
)

// RootCommand creates and returns the root command.
func RootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "barkwatch",
		Short: "Realtime dog bark detection",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(realtime.Command(), devices.Command())

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(configPath)
		if err != nil {
			return err
		}

		logging.Init(&logging.Config{
			Debug:      settings.Debug,
			FileOutput: settings.Log.Enabled,
			Path:       settings.Log.Path,
			MaxSizeMB:  settings.Log.MaxSize,
			MaxBackups: settings.Log.MaxBackups,
		})
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	}

	return rootCmd
}
