package main

import (
	"fmt"
	"sort"

	"gravchat/internal/storage"

	"github.com/spf13/cobra"
)

func newStoreCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and migrate the local database",
	}
	cmd.AddCommand(newStoreStatsCmd(opts), newStoreImportCmd(opts))
	return cmd
}

func newStoreStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage per collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Store.Estimate(cmd.Context())
			if err != nil {
				return err
			}
			version, err := app.Store.Version(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s (schema v%d)\n", app.Config.Storage.Path, version)
			fmt.Fprintln(out, app.Messages.T("store.usage", report.UsageMBString(), report.QuotaMBString(), report.PercentUsed))

			names := make([]string, 0, len(report.Collections))
			for name := range report.Collections {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				stats := report.Collections[name]
				fmt.Fprintf(out, "  %-16s %6d records  %10d bytes\n", name, stats.Count, stats.Bytes)
			}
			return nil
		},
	}
}

func newStoreImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <dir>",
		Short: "Import sessions and settings from legacy JSON exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := storage.ImportLegacy(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("store.imported",
				report.Sessions, report.Skipped, report.Group, report.Settings))
			return nil
		},
	}
}
