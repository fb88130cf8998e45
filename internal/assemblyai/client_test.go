package assemblyai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "test-key", nil)
	client.PollInterval = time.Millisecond
	return client
}

func writeAudioFixture(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadSendsFileWithAPIKey(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody []byte
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example.com/upload/1"})
	}))

	audioPath := writeAudioFixture(t, "fake-mp3-bytes")
	uploadURL, err := client.Upload(context.Background(), audioPath)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/upload/1", uploadURL)
	require.Equal(t, "test-key", gotAuth)
	require.Equal(t, "fake-mp3-bytes", string(gotBody))
}

func TestUploadReportsServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))

	_, err := client.Upload(context.Background(), writeAudioFixture(t, "x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid api key")
}

func TestSubmitCreatesTranscriptJob(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/transcript", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "https://cdn.example.com/upload/1", payload["audio_url"])

		_ = json.NewEncoder(w).Encode(transcriptResource{ID: "job-42", Status: "queued"})
	}))

	jobID, err := client.Submit(context.Background(), "https://cdn.example.com/upload/1")
	require.NoError(t, err)
	require.Equal(t, "job-42", jobID)
}

func TestWaitPollsUntilCompleted(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/transcript/job-42", r.URL.Path)

		resource := transcriptResource{ID: "job-42", Status: "processing"}
		if polls.Add(1) >= 3 {
			resource.Status = "completed"
			resource.Text = "hello world"
		}
		_ = json.NewEncoder(w).Encode(resource)
	}))

	text, err := client.Wait(context.Background(), "job-42")
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestWaitSurfacesRemoteError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(transcriptResource{ID: "job-42", Status: "error", Error: "audio too quiet"})
	}))

	_, err := client.Wait(context.Background(), "job-42")
	require.ErrorIs(t, err, ErrJobFailed)
	require.Contains(t, err.Error(), "audio too quiet")
}

func TestWaitHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(transcriptResource{ID: "job-42", Status: "processing"})
	}))
	client.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Wait(ctx, "job-42")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranscribeRunsFullFlow(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example.com/upload/9"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "https://cdn.example.com/upload/9", payload["audio_url"])
		_ = json.NewEncoder(w).Encode(transcriptResource{ID: "job-7", Status: "queued"})
	})
	mux.HandleFunc("/v2/transcript/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/transcript/job-7", r.URL.Path)
		resource := transcriptResource{ID: "job-7", Status: "processing"}
		if polls.Add(1) >= 2 {
			resource.Status = "completed"
			resource.Text = "full flow transcript"
		}
		_ = json.NewEncoder(w).Encode(resource)
	})

	client := newTestClient(t, mux)

	text, err := client.Transcribe(context.Background(), writeAudioFixture(t, "audio"))
	require.NoError(t, err)
	require.Equal(t, "full flow transcript", text)
}

func TestSubmitRejectsMissingJobID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	_, err := client.Submit(context.Background(), "https://cdn.example.com/upload/1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing job id")
}
