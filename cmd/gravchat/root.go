package main

import (
	"fmt"
	"strings"

	"gravchat/internal/bootstrap"
	"gravchat/internal/config"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

type rootOptions struct {
	configPath string
	dbPath     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "gravchat",
		Short: "Local-first chat client for OpenAI-compatible providers",
		Long: `gravchat keeps chat sessions, provider groups and settings in a local
sqlite database and streams replies from OpenAI-compatible endpoints.

Quick Start:
  gravchat groups add --url https://api.example.com --key sk-...
  gravchat chat                       # start chatting
  gravchat sessions list              # list saved sessions
  gravchat sessions export <id> -f md # export a session as Markdown`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config JSON/JSONC")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Override the sqlite database path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newChatCmd(opts),
		newGroupsCmd(opts),
		newSessionsCmd(opts),
		newStoreCmd(opts),
		newInitCmd(),
	)
	return root
}

// loadConfig applies command line overrides. Without --verbose, info logs
// on stderr are suppressed so they do not interleave with command output.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if path := strings.TrimSpace(o.dbPath); path != "" {
		cfg.Storage.Path = path
	}
	switch {
	case o.verbose:
		cfg.Logging.Level = "debug"
	case cfg.Logging.File == "" && strings.EqualFold(cfg.Logging.Level, config.DefaultLogLevel):
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

// open builds the application for one command. The caller must Close it.
func (o *rootOptions) open(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return bootstrap.Build(cmd.Context(), cfg, bootstrap.Options{})
}

// openStore is open for commands that cannot run without persistence.
func (o *rootOptions) openStore(cmd *cobra.Command) (*bootstrap.App, error) {
	app, err := o.open(cmd)
	if err != nil {
		return nil, err
	}
	if app.StoreErr != nil {
		_ = app.Close()
		return nil, fmt.Errorf("%s", app.Messages.T("error.store", app.StoreErr.Error()))
	}
	return app, nil
}
