package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gravchat/internal/engine"
	"gravchat/internal/export"
	"gravchat/internal/render"
	"gravchat/internal/repl"

	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect, export and prune saved sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(opts),
		newSessionsShowCmd(opts),
		newSessionsExportCmd(opts),
		newSessionsDeleteCmd(opts),
		newSessionsPruneCmd(opts),
		newSessionsClearCmd(opts),
	)
	return cmd
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			sessions := app.Engine.Sessions()
			if len(sessions) == 0 {
				fmt.Fprintln(out, app.Messages.T("sessions.empty"))
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintln(out, render.SessionLine(s, false, render.PlainTheme(), app.Messages.T("chat.title.new")))
			}
			return nil
		},
	}
}

func newSessionsShowCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			s, ok := app.Engine.Session(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", engine.ErrSessionNotFound, args[0])
			}
			tty := repl.IsTerminal() && !raw
			theme := render.PlainTheme()
			if tty {
				theme = render.DarkTheme()
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.RenderTranscript(s, theme, render.Options{
				Width:     repl.TerminalWidth(80),
				CodeTheme: app.Settings.CodeTheme(),
				Markdown:  tty,
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print message text without markdown rendering")
	return cmd
}

func newSessionsExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as Markdown, YAML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.NewExporter(format)
			if err != nil {
				return err
			}
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			s, ok := app.Engine.Session(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", engine.ErrSessionNotFound, args[0])
			}
			if output == "" {
				return exporter.Export(s, cmd.OutOrStdout())
			}
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				output = filepath.Join(output, s.ID+"."+exporter.Extension())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := exporter.Export(s, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close export file: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Export format: md, yaml or json")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file or directory (stdout by default)")
	return cmd
}

func newSessionsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Engine.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("repl.deleted", args[0]))
			return nil
		},
	}
}

func newSessionsPruneCmd(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var removed []string
			if cmd.Flags().Changed("days") {
				removed, err = app.Engine.UpdateRetention(cmd.Context(), days)
			} else {
				removed, err = app.Engine.ApplyRetention(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("sessions.pruned", len(removed)))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Store a new retention window before pruning")
	return cmd
}

func newSessionsClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear history without --yes")
			}
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Engine.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("sessions.cleared"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
