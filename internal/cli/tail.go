package cli

import (
	"context"
	"fmt"

	"github.com/oicur0t/watchlogs/internal/app"
	"github.com/oicur0t/watchlogs/internal/render"
	"github.com/oicur0t/watchlogs/pkg/models"
	"github.com/spf13/cobra"
)

type outputOptions struct {
	format    string
	fullClock bool
	view      app.View
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "output", "o", "text", "output format: text, json, yaml")
	cmd.Flags().BoolVar(&o.fullClock, "full-clock", false, "print the date with the time")
	cmd.Flags().BoolVar(&o.view.Open, "open", false, "show the payload of every log, nodes collapsed")
	cmd.Flags().BoolVar(&o.view.Expand, "expand", false, "show the payload of every log, fully unfolded")
}

func (o *outputOptions) renderer(cmd *cobra.Command) (render.Renderer, error) {
	r, err := render.New(o.format, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	if t, ok := r.(*render.TextRenderer); ok {
		t.FullClock = o.fullClock
	}
	return r, nil
}

// filterFlags patches the saved filters with the flags the user set
type filterFlags struct {
	filters models.Filters
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.filters.Message, "message", "", "only logs whose message contains this text")
	cmd.Flags().StringVar(&f.filters.Logger, "logger", "", "only logs whose raw logger starts with this prefix")
	cmd.Flags().StringVar(&f.filters.User, "user", "", "only logs of this user")
	cmd.Flags().StringVar(&f.filters.Duration, "duration", models.DurationEver,
		"age filter: lastMinute, lastFiveMinute, lastQuarter, lastHour, today, ever")
}

// apply updates the store filters when any filter flag was given
func (f *filterFlags) apply(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	cur := a.Store().Snapshot().Filters
	changed := false
	patch := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
			changed = true
		}
	}
	patch("message", &cur.Message, f.filters.Message)
	patch("logger", &cur.Logger, f.filters.Logger)
	patch("user", &cur.User, f.filters.User)
	patch("duration", &cur.Duration, f.filters.Duration)
	if !changed {
		return nil
	}
	if cur.Duration != models.FindDuration(cur.Duration).Key {
		return fmt.Errorf("unknown duration %q", cur.Duration)
	}
	return a.Store().UpdateFilters(ctx, cur)
}

func newTailCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "tail [PATTERN...]",
		Short: "Follow the saved files and the given files or globs",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := out.renderer(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := filters.apply(ctx, cmd, a); err != nil {
					return err
				}
				return a.Tail(ctx, args, out.view, r)
			})
		},
	}
	out.register(cmd)
	filters.register(cmd)
	return cmd
}

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "dump [PATTERN...]",
		Short: "Read files once and print the visible logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := out.renderer(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := filters.apply(ctx, cmd, a); err != nil {
					return err
				}
				return a.Dump(ctx, args, out.view, r)
			})
		},
	}
	out.register(cmd)
	filters.register(cmd)
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear PATH",
		Short: "Truncate a log file and drop its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Clear(ctx, args[0])
			})
		},
	}
}
