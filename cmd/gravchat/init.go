package main

import (
	"fmt"

	"gravchat/internal/config"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		dir    string
		locale string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a project config scaffold to ./.gravchat/config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.InitProjectConfigScaffold(dir)
			if err != nil {
				return err
			}
			if locale != "" {
				if err := config.WriteLocale(dir, locale); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory (current directory by default)")
	cmd.Flags().StringVar(&locale, "locale", "", "Locale to record in the config (en, zh-CN)")
	return cmd
}
