package main

import (
	"fmt"
	"path/filepath"

	"gravchat/internal/render"
	"gravchat/internal/repl"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		modelID   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat. Replies stream as they arrive; Ctrl-C stops
the current reply and Ctrl-D quits. Type /help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.StoreErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), app.Messages.T("error.store", app.StoreErr.Error()))
			}

			if sessionID != "" {
				if err := app.Engine.SelectSession(sessionID); err != nil {
					return err
				}
			}
			if modelID != "" {
				if err := app.Groups.SelectModel(modelID); err != nil {
					return err
				}
			}

			historyPath := filepath.Join(filepath.Dir(app.Config.Storage.Path), "repl.history")
			in, inputErr := repl.NewLineInput(historyPath)
			if inputErr != nil {
				app.Logger.Warn("line editor unavailable, falling back to basic input", zap.Error(inputErr))
			}
			defer in.Close()

			tty := repl.IsTerminal()
			theme := render.PlainTheme()
			if tty {
				theme = render.DarkTheme()
			}
			loop := repl.New(app.Engine, app.Groups, app.Settings, app.Messages, in, cmd.OutOrStdout(), repl.Options{
				Width:         repl.TerminalWidth(80),
				Markdown:      tty,
				Theme:         theme,
				Interruptible: true,
			}, app.Logger)
			return loop.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume the session with this id")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Select a model before chatting")
	return cmd
}
