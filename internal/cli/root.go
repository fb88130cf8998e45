package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/tubescribe/internal/assemblyai"
	"github.com/fmueller/tubescribe/internal/config"
	"github.com/fmueller/tubescribe/internal/logging"
	"github.com/fmueller/tubescribe/internal/server"
	"github.com/fmueller/tubescribe/internal/transcribe"
	"github.com/fmueller/tubescribe/internal/version"
	"github.com/fmueller/tubescribe/internal/youtube"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	port       int

	logger *zap.Logger

	loadConfigFn func() (config.Config, error)
	transcribeFn func(ctx context.Context, cfg config.Config, url string) (transcribe.Result, error)
	serveFn      func(ctx context.Context, cfg config.Config) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{}
	app.loadConfigFn = config.Load
	app.transcribeFn = app.transcribeOnce
	app.serveFn = app.serve

	cmd := &cobra.Command{
		Use:           "tubescribe",
		Short:         "YouTube transcription backend powered by yt-dlp and AssemblyAI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().IntVar(&app.port, "port", app.port, "Port to listen on; 0 uses PORT from the environment")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func (a *appState) loadConfig() (config.Config, error) {
	loadFn := a.loadConfigFn
	if loadFn == nil {
		loadFn = config.Load
	}

	cfg, err := loadFn()
	if err != nil {
		return config.Config{}, err
	}
	if a.port > 0 {
		cfg.Port = a.port
	}
	return cfg, nil
}

// newPipeline wires the downloader and the speech-to-text client into the
// request pipeline. interactive enables terminal progress for CLI use.
func (a *appState) newPipeline(cfg config.Config, interactive bool) *transcribe.Service {
	downloader := youtube.NewDownloader(cfg.YTDLPPath, cfg.DownloadTimeout, cfg.MetadataTimeout, a.log())

	client := assemblyai.NewClient(cfg.BaseURL, cfg.APIKey, a.log())
	client.PollInterval = cfg.PollInterval
	client.ShowProgress = interactive && a.progressEnabled()

	return transcribe.NewService(downloader, client, cfg.TranscribeTimeout, a.log())
}

func (a *appState) serve(_ context.Context, cfg config.Config) error {
	var pipeline server.Pipeline
	if cfg.TranscriptionEnabled() {
		downloader := youtube.NewDownloader(cfg.YTDLPPath, cfg.DownloadTimeout, cfg.MetadataTimeout, a.log())
		if !downloader.Available() {
			a.log().Warn("yt-dlp not found on PATH; transcription requests will fail until it is installed")
		}

		client := assemblyai.NewClient(cfg.BaseURL, cfg.APIKey, a.log())
		client.PollInterval = cfg.PollInterval

		pipeline = transcribe.NewService(downloader, client, cfg.TranscribeTimeout, a.log())
	} else {
		a.log().Warn("ASSEMBLYAI_API_KEY is not set; serving health checks only")
	}

	srv := server.New(pipeline, a.log())
	a.log().Info("listening", zap.Int("port", cfg.Port))
	return srv.Listen(cfg.Port)
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
