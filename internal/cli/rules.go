package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oicur0t/watchlogs/internal/app"
	"github.com/oicur0t/watchlogs/pkg/models"
	"github.com/spf13/cobra"
)

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return abs, nil
}

type loggerFlags struct {
	color     string
	bgColor   string
	bgOpacity float64
	disabled  bool
}

func (f *loggerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.color, "color", "", "text color (#rrggbb)")
	cmd.Flags().StringVar(&f.bgColor, "bg-color", "", "background color (#rrggbb)")
	cmd.Flags().Float64Var(&f.bgOpacity, "bg-opacity", 0.5, "background opacity between 0 and 1")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "hide logs matching this logger")
}

// patch copies the flags the user set onto l
func (f *loggerFlags) patch(cmd *cobra.Command, l models.Logger) models.Logger {
	if cmd.Flags().Changed("color") {
		l.Color = f.color
	}
	if cmd.Flags().Changed("bg-color") {
		l.BgColor = f.bgColor
	}
	if cmd.Flags().Changed("bg-opacity") {
		l.BgOpacity = f.bgOpacity
	}
	if cmd.Flags().Changed("disabled") {
		l.Enabled = !f.disabled
	}
	return l
}

func newLoggersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loggers",
		Short: "Manage logger rules, matched by prefix on the record's logger field",
	}

	var addFlags loggerFlags
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a logger rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := models.Logger{
				Name:      args[0],
				Color:     addFlags.color,
				BgColor:   addFlags.bgColor,
				BgOpacity: addFlags.bgOpacity,
				Enabled:   !addFlags.disabled,
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Store().AddLogger(ctx, l)
			})
		},
	}
	addFlags.register(add)

	var setFlags loggerFlags
	set := &cobra.Command{
		Use:   "set NAME",
		Short: "Change a logger rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				for _, l := range a.Store().Snapshot().Loggers {
					if l.Name == args[0] {
						return a.Store().UpdateLogger(ctx, l.Name, setFlags.patch(cmd, l))
					}
				}
				return fmt.Errorf("logger %q: not found", args[0])
			})
		},
	}
	setFlags.register(set)

	rm := &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a logger rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Store().RemoveLogger(ctx, args[0])
			})
		},
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List logger rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return printYAML(cmd, a.Store().Snapshot().Loggers)
			})
		},
	}

	cmd.AddCommand(add, set, rm, ls)
	return cmd
}

type levelFlags struct {
	severity int
	color    string
	disabled bool
}

func (f *levelFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.severity, "severity", 0, "sort key, lower first")
	cmd.Flags().StringVar(&f.color, "color", "", "clock background color (#rrggbb)")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "hide logs of this level")
}

func (f *levelFlags) patch(cmd *cobra.Command, l models.Level) models.Level {
	if cmd.Flags().Changed("severity") {
		l.Severity = f.severity
	}
	if cmd.Flags().Changed("color") {
		l.Color = f.color
	}
	if cmd.Flags().Changed("disabled") {
		l.Enabled = !f.disabled
	}
	return l
}

func newLevelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Manage level rules, matched exactly on the record's level field",
	}

	var addFlags levelFlags
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a level rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := models.Level{
				Name:     args[0],
				Severity: addFlags.severity,
				Color:    addFlags.color,
				Enabled:  !addFlags.disabled,
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Store().AddLevel(ctx, l)
			})
		},
	}
	addFlags.register(add)

	var setFlags levelFlags
	set := &cobra.Command{
		Use:   "set NAME",
		Short: "Change a level rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				for _, l := range a.Store().Snapshot().Levels {
					if l.Name == args[0] {
						return a.Store().UpdateLevel(ctx, l.Name, setFlags.patch(cmd, l))
					}
				}
				return fmt.Errorf("level %q: not found", args[0])
			})
		},
	}
	setFlags.register(set)

	rm := &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a level rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Store().RemoveLevel(ctx, args[0])
			})
		},
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List level rules by severity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return printYAML(cmd, a.Store().Snapshot().Levels)
			})
		},
	}

	cmd.AddCommand(add, set, rm, ls)
	return cmd
}
