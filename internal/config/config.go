package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort              = 5000
	defaultBaseURL           = "https://api.assemblyai.com"
	defaultDownloadTimeout   = 2 * time.Minute
	defaultMetadataTimeout   = 15 * time.Second
	defaultTranscribeTimeout = 6 * time.Minute
	defaultPollInterval      = 3 * time.Second
)

// Config holds process-wide settings. It is populated once at startup and
// never mutated afterwards.
type Config struct {
	// APIKey authenticates against the speech-to-text service. When empty
	// the server still starts but only serves the health endpoint.
	APIKey  string
	BaseURL string

	Port int

	// YTDLPPath overrides the downloader binary; empty means "yt-dlp" on PATH.
	YTDLPPath string

	DownloadTimeout   time.Duration
	MetadataTimeout   time.Duration
	TranscribeTimeout time.Duration
	PollInterval      time.Duration
}

// Load reads configuration from the environment, preferring values from a
// .env file in the working directory when present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		APIKey:            strings.TrimSpace(getenv("ASSEMBLYAI_API_KEY")),
		BaseURL:           defaultBaseURL,
		Port:              defaultPort,
		YTDLPPath:         strings.TrimSpace(getenv("YTDLP_PATH")),
		DownloadTimeout:   defaultDownloadTimeout,
		MetadataTimeout:   defaultMetadataTimeout,
		TranscribeTimeout: defaultTranscribeTimeout,
		PollInterval:      defaultPollInterval,
	}

	if raw := strings.TrimSpace(getenv("ASSEMBLYAI_BASE_URL")); raw != "" {
		cfg.BaseURL = strings.TrimRight(raw, "/")
	}

	if raw := strings.TrimSpace(getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", raw)
		}
		cfg.Port = port
	}

	for _, entry := range []struct {
		name   string
		target *time.Duration
	}{
		{"DOWNLOAD_TIMEOUT", &cfg.DownloadTimeout},
		{"TRANSCRIBE_TIMEOUT", &cfg.TranscribeTimeout},
		{"TRANSCRIBE_POLL_INTERVAL", &cfg.PollInterval},
	} {
		raw := strings.TrimSpace(getenv(entry.name))
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid %s %q", entry.name, raw)
		}
		*entry.target = d
	}

	return cfg, nil
}

// TranscriptionEnabled reports whether the process holds the credential
// required to reach the speech-to-text service.
func (c Config) TranscriptionEnabled() bool {
	return c.APIKey != ""
}
