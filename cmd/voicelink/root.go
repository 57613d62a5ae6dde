package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicelink/internal/app"
	"github.com/MrWong99/voicelink/internal/config"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "voicelink",
		Short:         "Real-time voice session coordinator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringSliceVar(&f.envFiles, "env", nil, "dotenv files to load before the config (default .env)")

	cmd.AddCommand(newRunCmd(f), newValidateCmd(f), newHistoryCmd(f))
	return cmd
}

// loadConfig reads the dotenv files and then the config file.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", f.configPath)
	}
	return cfg, err
}

// newLogger builds the process logger. The returned level var lets a config
// reload change the level without rebuilding the handler.
func newLogger(w io.Writer, cfg config.ServerConfig) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(app.ParseLevel(cfg.LogLevel))
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if cfg.LogFormat == config.LogJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), lvl
}

func newValidateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", f.configPath)
			fmt.Fprintf(out, "  agent:         %s\n", enabled(cfg.Services.Agent.Enabled))
			fmt.Fprintf(out, "  transcription: %s\n", enabled(cfg.Services.Transcription.Enabled))
			fmt.Fprintf(out, "  storage:       %s\n", cfg.Storage.Backend)
			if len(cfg.Bus.Servers) > 0 {
				fmt.Fprintf(out, "  bus:           %v\n", cfg.Bus.Servers)
			}
			return nil
		},
	}
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
