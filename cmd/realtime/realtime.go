// Package realtime implements the command starting the detection pipeline.
package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/barkwatch/barkwatch/internal/analysis"
	"github.com/barkwatch/barkwatch/internal/conf"
)

// Command creates the realtime detection command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Detect dog barks in realtime",
		Long:  "Capture microphone audio and detect dog barks, exporting clips and publishing events as they occur.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(conf.GetSettings())
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(fmt.Sprintf("error setting up realtime flags: %v", err))
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Bool("dry-run", false, "Log events instead of delivering them to sinks")
	cmd.Flags().String("source", "", "Audio capture source (\"sysdefault\", \"USB Audio\", \":0,0\", etc.)")
	cmd.Flags().String("clip-path", "", "Path to save audio clips")

	bindings := map[string]string{
		"publish.dryrun": "dry-run",
		"audio.source":   "source",
		"capture.path":   "clip-path",
	}
	for key, flag := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("error binding flag %q: %w", flag, err)
		}
	}
	return nil
}
