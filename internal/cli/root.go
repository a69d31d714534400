// Package cli holds the parlo command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sjawhar/parlo/internal/config"
)

const Version = "0.1.0"

type Dependencies struct {
	Config     *config.Config
	ConfigPath string
	Warnings   []string
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parlo",
		Short: "Practice a language by talking with an AI tutor",
		Long:  "A voice language tutor: speak or type to a chat model that answers in your target language, with replies read aloud and an audio visualizer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), deps)
		},
		SilenceUsage: true,
	}

	rootCmd.Version = Version

	rootCmd.AddCommand(NewChatCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
