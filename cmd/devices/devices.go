// Package devices implements the capture device listing command.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barkwatch/barkwatch/internal/myaudio"
)

// Command creates the command listing available audio capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := myaudio.ListCaptureDevices()
			if err != nil {
				return fmt.Errorf("error listing capture devices: %w", err)
			}

			if len(infos) == 0 {
				fmt.Println("No capture devices found")
				return nil
			}

			fmt.Println("Available capture devices:")
			for i, info := range infos {
				fmt.Printf("  %d: %s (ID: %s)\n", i, info.Name, info.ID)
			}
			return nil
		},
	}
}
