package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"voiceclick/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListInputDevices()
		if err != nil {
			printError("audio", err)
			return err
		}
		printDevices(cmd.OutOrStdout(), devices)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func printDevices(w io.Writer, devices []audio.InputDevice) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No input devices found.")
		return
	}
	for _, device := range devices {
		marker := " "
		if device.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s [%s] %d ch @ %.0f Hz\n",
			marker, device.Name, device.HostAPI, device.MaxInputChannels, device.DefaultSampleRate)
	}
}
