package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/parlo/internal/audio"
	"github.com/sjawhar/parlo/internal/config"
	"github.com/sjawhar/parlo/internal/remote"
	"github.com/sjawhar/parlo/internal/storage"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, keys, storage and audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd.OutOrStdout())
			if _, err := os.Stat(deps.ConfigPath); err != nil {
				f.Check("Config file", true, deps.ConfigPath+" not found, using defaults and environment")
			} else {
				f.Check("Config file", true, deps.ConfigPath)
			}
			ok := runChecks(cmd.Context(), deps.Config, f)

			for _, w := range deps.Warnings {
				f.Warning(w)
			}
			if ok && len(deps.Warnings) == 0 {
				f.Success("\nAll checks passed.")
			} else {
				f.Warning("\nSome checks failed.")
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfg *config.Config, f *formatter) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ok := true
	check := func(name string, passed bool, detail string) {
		f.Check(name, passed, detail)
		ok = ok && passed
	}

	if cfg.Remote() {
		check("Gateway", true, cfg.ServerURL)
		client, err := remote.New(cfg.ServerURL)
		if err == nil {
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			status, serr := client.Status(sctx)
			cancel()
			err = serr
			if err == nil {
				check("Gateway status", true, fmt.Sprintf("model %s, %s/%s", status.Model, status.Transcriber, status.Synthesizer))
				for _, w := range status.Warnings {
					check("Gateway", false, w)
				}
			}
		}
		if err != nil {
			check("Gateway status", false, err.Error())
		}
	} else {
		for _, p := range requiredProviders(cfg) {
			if cfg.APIKey(p) != "" {
				check(p+" API key", true, "configured")
			} else {
				check(p+" API key", false, fmt.Sprintf("not set. Set %s%s_API_KEY", config.EnvPrefix, strings.ToUpper(p)))
			}
		}
		if cfg.Transcriber == "google" {
			detail := "application default credentials"
			passed := true
			if cfg.GoogleCredentialsFile != "" {
				detail = cfg.GoogleCredentialsFile
				if _, err := os.Stat(cfg.GoogleCredentialsFile); err != nil {
					passed, detail = false, err.Error()
				}
			}
			check("Google credentials", passed, detail)
		}
	}

	if store, err := storage.NewSQLiteStore(cfg.DBPath); err != nil {
		check("Database", false, err.Error())
	} else {
		_ = store.Close()
		check("Database", true, cfg.DBPath)
	}

	terminate, err := audio.Initialize()
	if err != nil {
		check("Audio", false, err.Error())
		return ok
	}
	defer func() { _ = terminate() }()
	devices, err := audio.ListInputDevices()
	switch {
	case err != nil:
		check("Microphone", false, err.Error())
	case len(devices) == 0:
		check("Microphone", false, "no input devices found")
	default:
		name := devices[0].Name
		for _, d := range devices {
			if d.Default {
				name = d.Name
			}
		}
		check("Microphone", true, name)
	}
	return ok
}

// requiredProviders lists the providers whose keys the current selection
// needs, without duplicates.
func requiredProviders(cfg *config.Config) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range []string{cfg.ChatProvider(), cfg.Transcriber, cfg.Synthesizer} {
		if p == "" || p == "google" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
