package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sjawhar/parlo/internal/audio"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			terminate, err := audio.Initialize()
			if err != nil {
				return err
			}
			defer func() { _ = terminate() }()

			devices, err := audio.ListInputDevices()
			if err != nil {
				return err
			}

			f := newFormatter(cmd.OutOrStdout())
			if len(devices) == 0 {
				f.Warning("no input devices found")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				f.Line("%s %s (%s, %d ch, %.0f Hz)", marker, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate)
			}
			f.Line("")
			f.Line("sample rates tried: %s", formatRates(deps.Config.SampleRateCandidates()))
			return nil
		},
	}
}

func formatRates(rates []int) string {
	out := ""
	for i, r := range rates {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", r)
	}
	return out
}
