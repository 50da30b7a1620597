package cli

import (
	"context"
	"fmt"

	"github.com/oicur0t/watchlogs/internal/app"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// printYAML writes v as a YAML document to the command output
func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func newFilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the saved watch set",
	}

	add := &cobra.Command{
		Use:   "add PATTERN...",
		Short: "Save existing files to the watch set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				added, err := a.AddFiles(ctx, args)
				for _, path := range added {
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
				return err
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm PATH...",
		Short: "Drop files from the watch set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				for _, path := range args {
					if err := a.RemoveFile(ctx, path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	var color string
	set := &cobra.Command{
		Use:   "set PATH",
		Short: "Enable, disable or recolor a saved file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch store.FilePatch
			if cmd.Flags().Changed("enabled") {
				enabled, _ := cmd.Flags().GetBool("enabled")
				patch.Enabled = &enabled
			}
			if cmd.Flags().Changed("color") {
				patch.Color = &color
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				path, err := resolvePath(args[0])
				if err != nil {
					return err
				}
				return a.Store().UpdateFile(ctx, path, patch)
			})
		},
	}
	set.Flags().Bool("enabled", true, "show logs of this file")
	set.Flags().StringVar(&color, "color", "", "file name color (#rrggbb)")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List the saved files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return printYAML(cmd, a.Store().Snapshot().Files)
			})
		},
	}

	cmd.AddCommand(add, rm, set, ls)
	return cmd
}
