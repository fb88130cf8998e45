package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/tubescribe/internal/config"
	"github.com/fmueller/tubescribe/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <youtube-url>",
		Short: "Transcribe a YouTube video and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.TranscriptionEnabled() {
				return errors.New("ASSEMBLYAI_API_KEY must be set to transcribe")
			}

			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeOnce
			}

			result, err := transcribeFn(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Transcript)
			if strings.TrimSpace(result.Transcript) == "" {
				app.log().Warn("no speech detected in audio", zap.String("title", result.Title))
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	return cmd
}

func (a *appState) transcribeOnce(ctx context.Context, cfg config.Config, url string) (transcribe.Result, error) {
	svc := a.newPipeline(cfg, true)

	a.log().Info("transcribing...", zap.String("url", url))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	result, err := svc.Run(ctx, url)
	stopSpinner()
	if err != nil {
		return transcribe.Result{}, err
	}

	a.log().Info("transcript ready", zap.String("title", result.Title), zap.Duration("elapsed", time.Since(started)))
	return result, nil
}
