package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicelink/internal/app"
)

func newHistoryCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the persisted conversation",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			s, closeFn, err := app.OpenStorage(cmd.Context(), cfg.Storage, slog.Default())
			if err != nil {
				return err
			}
			defer closeFn()
			if s == nil {
				return errors.New("storage backend is none, no history is kept")
			}

			msgs, err := app.History(cmd.Context(), s, cfg.Session.HistoryKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No conversation stored.")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "%s  %-9s  %s\n", m.Timestamp.Local().Format(time.DateTime), m.Role, m.Content)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			s, closeFn, err := app.OpenStorage(cmd.Context(), cfg.Storage, slog.Default())
			if err != nil {
				return err
			}
			defer closeFn()
			if s == nil {
				return errors.New("storage backend is none, no history is kept")
			}
			if err := app.ClearHistory(cmd.Context(), s, cfg.Session.HistoryKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		},
	})

	return cmd
}
