package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fmueller/tubescribe/internal/assemblyai"
	"github.com/fmueller/tubescribe/internal/youtube"
	"go.uber.org/zap"
)

// Failure kinds, checked with errors.Is at the HTTP boundary.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDownloadFailed      = errors.New("audio download failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Result is the successful outcome of a transcription request.
type Result struct {
	Transcript string
	Title      string
	VideoID    string
}

// Service runs the request pipeline: validate the URL, fetch the audio
// track, hand it to the speech-to-text service and clean up the temp file.
// Each call is independent; the service holds no mutable state.
type Service struct {
	TranscribeTimeout time.Duration

	logger *zap.Logger

	downloadFn   func(ctx context.Context, url string) (string, error)
	titleFn      func(ctx context.Context, url string) string
	transcribeFn func(ctx context.Context, audioPath string) (string, error)
}

func NewService(downloader *youtube.Downloader, client *assemblyai.Client, transcribeTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		TranscribeTimeout: transcribeTimeout,
		logger:            logger,
		downloadFn:        downloader.DownloadAudio,
		titleFn:           downloader.Title,
		transcribeFn:      client.Transcribe,
	}
}

// Run executes the full pipeline for one URL. The downloaded audio file
// never outlives the call: it is removed on every exit path once it exists.
func (s *Service) Run(ctx context.Context, url string) (Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{}, fmt.Errorf("%w: missing 'url' in request body", ErrInvalidRequest)
	}

	videoID := youtube.ExtractVideoID(url)
	if videoID == "" {
		return Result{}, fmt.Errorf("%w: not a recognizable YouTube URL", ErrInvalidRequest)
	}

	title := s.titleFn(ctx, url)

	s.logger.Info("downloading audio", zap.String("video_id", videoID))
	audioPath, err := s.downloadFn(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove temp audio file", zap.String("path", audioPath), zap.Error(err))
		}
	}()

	transcribeCtx := ctx
	if s.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		transcribeCtx, cancel = context.WithTimeout(ctx, s.TranscribeTimeout)
		defer cancel()
	}

	s.logger.Info("transcribing audio", zap.String("video_id", videoID))
	started := time.Now()
	transcript, err := s.transcribeFn(transcribeCtx, audioPath)
	if err != nil {
		s.logger.Warn("transcription failed", zap.String("video_id", videoID), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	s.logger.Info("transcription finished", zap.String("video_id", videoID), zap.Duration("elapsed", time.Since(started)), zap.Int("chars", len(transcript)))

	return Result{
		Transcript: transcript,
		Title:      title,
		VideoID:    videoID,
	}, nil
}
