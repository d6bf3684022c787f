package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gravchat/internal/bootstrap"
	"gravchat/internal/chat"
	"gravchat/internal/groups"
	"gravchat/internal/render"

	"github.com/spf13/cobra"
)

func newGroupsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Manage provider groups and models",
	}
	cmd.AddCommand(
		newGroupsListCmd(opts),
		newGroupsModelsCmd(opts),
		newGroupsAddCmd(opts),
		newGroupsSetCmd(opts),
		newGroupsRemoveCmd(opts),
		newGroupsSyncCmd(opts),
		newGroupsUseCmd(opts),
	)
	return cmd
}

func newGroupsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			list := app.Groups.Groups()
			if len(list) == 0 {
				fmt.Fprintln(out, app.Messages.T("groups.empty"))
				return nil
			}
			active := app.Settings.ActiveGroupID()
			for _, g := range list {
				marker := " "
				if g.ID == active {
					marker = "*"
				}
				kind := "built-in"
				if g.IsUserDefined {
					kind = "user"
				}
				fmt.Fprintf(out, "%s %s  %s  %s  %d models  [%s]\n",
					marker, g.ID, g.Name, g.Endpoint.BaseURL, len(g.Models), kind)
			}
			return nil
		},
	}
}

func newGroupsModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [group-id]",
		Short: "List the models of a group (the active group by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			id := app.Settings.ActiveGroupID()
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return groups.ErrGroupNotFound
			}
			models, err := app.Groups.LoadModelsPreferCache(cmd.Context(), id)
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), app, models)
			return nil
		},
	}
}

func printModels(out io.Writer, app *bootstrap.App, models []chat.ModelDescriptor) {
	theme := render.PlainTheme()
	active := app.Settings.ActiveModelID()
	for _, m := range models {
		if _, ok := app.Groups.Decorations.Get(m.ID); !ok {
			app.Groups.Decorations.Set(m.ID, render.ModelDecoration(m.ID))
		}
		dec, _ := app.Groups.Decorations.Get(m.ID)
		fmt.Fprintln(out, render.ModelLine(m, dec, m.ID == active, theme))
	}
}

func newGroupsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		name    string
		baseURL string
		apiKey  string
		path    string
		adapter string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a provider group from a live model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			g, err := app.Groups.CreateGroup(cmd.Context(), groups.GroupConfig{
				Name:        name,
				AdapterKind: adapter,
				Endpoint: chat.EndpointConfig{
					BaseURL:    baseURL,
					Path:       path,
					Credential: apiKey,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("groups.created", g.ID, len(g.Models)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the URL)")
	cmd.Flags().StringVar(&baseURL, "url", "", "Endpoint base URL")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key")
	cmd.Flags().StringVar(&path, "path", "", "Chat completions path override")
	cmd.Flags().StringVar(&adapter, "adapter", "", "Adapter kind: openai, wong or anyrouter")
	return cmd
}

func newGroupsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		path    string
	)
	cmd := &cobra.Command{
		Use:   "set <group-id>",
		Short: "Update a group's endpoint; the catalog is re-synced when it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			g, ok := app.Groups.Group(args[0])
			if !ok {
				return groups.ErrGroupNotFound
			}
			endpoint := g.Endpoint
			if cmd.Flags().Changed("url") {
				endpoint.BaseURL = baseURL
			}
			if cmd.Flags().Changed("key") {
				endpoint.Credential = apiKey
			}
			if cmd.Flags().Changed("path") {
				endpoint.Path = path
			}
			res, err := app.Groups.UpdateEndpointConfig(cmd.Context(), g.ID, endpoint)
			if err != nil {
				return syncFailure(app, g.ID, err)
			}
			if res != nil {
				printSync(cmd.OutOrStdout(), app, *res)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Endpoint base URL")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key")
	cmd.Flags().StringVar(&path, "path", "", "Chat completions path override")
	return cmd
}

func newGroupsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <group-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a user-defined provider group",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Groups.DeleteGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("groups.deleted", args[0]))
			return nil
		},
	}
}

func newGroupsSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [group-id...]",
		Short: "Refresh model catalogs (all groups with credentials by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ids := args
			if len(ids) == 0 {
				for _, g := range app.Groups.Groups() {
					if g.Endpoint.Complete() {
						ids = append(ids, g.ID)
					}
				}
			}
			out := cmd.OutOrStdout()
			var failed []error
			for _, id := range ids {
				_, err := app.Groups.SyncCatalog(cmd.Context(), id, func(res groups.SyncResult, err error) {
					if err == nil {
						printSync(out, app, res)
					}
				})
				if err != nil {
					failed = append(failed, syncFailure(app, id, err))
				}
			}
			return errors.Join(failed...)
		},
	}
}

func newGroupsUseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <model-id|group-id>",
		Short: "Select the active model, or the active group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			target := strings.TrimSpace(args[0])
			if _, ok := app.Groups.Group(target); ok {
				if err := app.Groups.SetActiveGroup(target); err != nil {
					return err
				}
			} else if err := app.Groups.SelectModel(target); err != nil {
				return err
			}
			t, err := app.Groups.ActiveTarget()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Messages.T("repl.model_set", t.ModelID, t.Group.Name))
			return nil
		},
	}
}

func printSync(out io.Writer, app *bootstrap.App, res groups.SyncResult) {
	fmt.Fprintln(out, app.Messages.T("groups.synced", res.GroupID, res.Models, len(res.Added), len(res.Removed)))
}

func syncFailure(app *bootstrap.App, id string, err error) error {
	return fmt.Errorf("%s: %w", app.Messages.T("groups.sync_fail", id), err)
}
