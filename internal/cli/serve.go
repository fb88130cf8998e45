package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the transcription HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	bindLoggingFlags(cmd, app)
	bindServeFlags(cmd, app)
	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	serveFn := a.serveFn
	if serveFn == nil {
		serveFn = a.serve
	}
	return serveFn(ctx, cfg)
}
