package cli

import (
	"context"

	"github.com/oicur0t/watchlogs/internal/app"
	"github.com/oicur0t/watchlogs/pkg/models"
	"github.com/spf13/cobra"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change which record fields hold which values",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the field settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return printYAML(cmd, a.Store().Snapshot().Settings)
			})
		},
	}

	var next models.Settings
	set := &cobra.Command{
		Use:   "set",
		Short: "Change field settings; every log is renormalized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				s := a.Store().Snapshot().Settings
				fields := []struct {
					flag string
					dst  *string
					v    string
				}{
					{"timestamp-key", &s.TimestampKey, next.TimestampKey},
					{"level-key", &s.LevelKey, next.LevelKey},
					{"logger-key", &s.LoggerKey, next.LoggerKey},
					{"user-key", &s.UserKey, next.UserKey},
					{"payload-key", &s.PayloadKey, next.PayloadKey},
					{"message-key", &s.MessageKey, next.MessageKey},
				}
				for _, f := range fields {
					if cmd.Flags().Changed(f.flag) {
						*f.dst = f.v
					}
				}
				if cmd.Flags().Changed("payload-parse") {
					s.PayloadParse = next.PayloadParse
				}
				return a.Store().UpdateSettings(ctx, s)
			})
		},
	}
	set.Flags().StringVar(&next.TimestampKey, "timestamp-key", "", "timestamp field (empty: timestamp, then time)")
	set.Flags().StringVar(&next.LevelKey, "level-key", "", "level field (empty: level)")
	set.Flags().StringVar(&next.LoggerKey, "logger-key", "", "logger field (empty: logger)")
	set.Flags().StringVar(&next.UserKey, "user-key", "", "user field (empty: user)")
	set.Flags().StringVar(&next.PayloadKey, "payload-key", "", "payload field (empty: payload)")
	set.Flags().StringVar(&next.MessageKey, "message-key", "", "message field (empty: message, then msg)")
	set.Flags().BoolVar(&next.PayloadParse, "payload-parse", false, "decode string payloads as JSON")

	cmd.AddCommand(show, set)
	return cmd
}

func newFiltersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Show or change the saved log filters",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return printYAML(cmd, a.Store().Snapshot().Filters)
			})
		},
	}

	var filters filterFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the saved filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return filters.apply(ctx, cmd, a)
			})
		},
	}
	filters.register(set)

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear every filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Store().UpdateFilters(ctx, models.DefaultFilters())
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}
