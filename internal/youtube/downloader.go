package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBinary = "yt-dlp"
	titleFallback = "YouTube Video"
)

// audioExtensions lists the artifact extensions yt-dlp may leave behind when
// it cannot produce the requested format.
var audioExtensions = []string{".mp3", ".m4a", ".webm", ".opus"}

// Downloader fetches the audio track of a video by shelling out to yt-dlp.
type Downloader struct {
	Binary          string
	DownloadTimeout time.Duration
	MetadataTimeout time.Duration
	Logger          *zap.Logger

	// tempDir overrides os.TempDir for tests.
	tempDir string
}

func NewDownloader(binary string, downloadTimeout, metadataTimeout time.Duration, logger *zap.Logger) *Downloader {
	if strings.TrimSpace(binary) == "" {
		binary = defaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		Binary:          binary,
		DownloadTimeout: downloadTimeout,
		MetadataTimeout: metadataTimeout,
		Logger:          logger,
	}
}

// Available reports whether the downloader binary can be found.
func (d *Downloader) Available() bool {
	_, err := exec.LookPath(d.Binary)
	return err == nil
}

// DownloadAudio extracts the best audio-only stream of the given URL into a
// uniquely named file under the temp directory and returns the path of the
// artifact actually written. On failure any partial artifact is removed
// before the error is returned.
func (d *Downloader) DownloadAudio(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("url is required")
	}

	outPath := filepath.Join(d.tempRoot(), fmt.Sprintf("yt-audio-%s.mp3", uuid.NewString()))

	if d.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.DownloadTimeout)
		defer cancel()
	}

	args := []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "-o", outPath, "--no-warnings", url}
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	d.Logger.Debug("running downloader", zap.String("binary", d.Binary), zap.Strings("args", args))
	started := time.Now()
	err := cmd.Run()
	if err != nil {
		d.removePartial(outPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("download timed out after %s: %w", time.Since(started).Round(time.Second), ctxErr)
		}
		errText := strings.TrimSpace(stderr.String())
		if errText != "" {
			return "", fmt.Errorf("%s failed: %w (%s)", d.Binary, err, errText)
		}
		return "", fmt.Errorf("%s failed: %w", d.Binary, err)
	}

	artifact, err := locateArtifact(outPath)
	if err != nil {
		return "", err
	}

	d.Logger.Debug("audio downloaded", zap.String("path", artifact), zap.Duration("elapsed", time.Since(started)))
	return artifact, nil
}

// Title asks yt-dlp for the video's display title. Metadata is best effort:
// any failure yields a generic fallback rather than an error.
func (d *Downloader) Title(ctx context.Context, url string) string {
	if d.MetadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.MetadataTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.Binary, "--get-title", "--no-warnings", url)
	out, err := cmd.Output()
	if err != nil {
		d.Logger.Warn("failed to fetch video title", zap.String("url", url), zap.Error(err))
		return titleFallback
	}

	title := strings.TrimSpace(string(out))
	if title == "" {
		return titleFallback
	}
	return title
}

func (d *Downloader) tempRoot() string {
	if d.tempDir != "" {
		return d.tempDir
	}
	return os.TempDir()
}

func (d *Downloader) removePartial(outPath string) {
	for _, candidate := range artifactCandidates(outPath) {
		err := os.Remove(candidate)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			d.Logger.Warn("failed to remove partial download", zap.String("path", candidate), zap.Error(err))
		}
	}
}

// locateArtifact finds the file yt-dlp actually wrote. The tool may append
// an extension to the requested output path or keep the source container
// format when extraction is not possible.
func locateArtifact(outPath string) (string, error) {
	for _, candidate := range artifactCandidates(outPath) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("audio file not found after download at %s", outPath)
}

func artifactCandidates(outPath string) []string {
	candidates := []string{outPath, outPath + ".mp3"}
	base := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	for _, ext := range audioExtensions {
		if base+ext != outPath {
			candidates = append(candidates, base+ext)
		}
	}
	return candidates
}
