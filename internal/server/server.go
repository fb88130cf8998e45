package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmueller/tubescribe/internal/transcribe"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Pipeline is the transcription flow the server drives per request.
type Pipeline interface {
	Run(ctx context.Context, url string) (transcribe.Result, error)
}

// Server wraps the fiber app exposing the HTTP surface: a health check and
// the single transcription endpoint.
type Server struct {
	app      *fiber.App
	pipeline Pipeline
	logger   *zap.Logger
}

type transcribeRequest struct {
	URL string `json:"url"`
}

type transcribeResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
	Title      string `json:"title"`
	VideoID    string `json:"videoId"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// New builds the server. A nil pipeline means the transcription credential
// is absent; the health check still works but transcription requests are
// rejected with 503.
func New(pipeline Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{pipeline: pipeline, logger: logger}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New())

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("tubescribe is running")
	})
	s.app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Post("/api/transcribe-youtube", s.handleTranscribe)

	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the given port.
func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{
			Error: "transcription is disabled: missing speech-to-text API key",
		})
	}

	var req transcribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "invalid request body: expected JSON with a 'url' string",
		})
	}

	result, err := s.pipeline.Run(c.Context(), req.URL)
	if err != nil {
		status := statusForError(err)
		if status == fiber.StatusInternalServerError {
			s.logger.Error("transcription request failed", zap.Error(err))
			return c.Status(status).JSON(errorResponse{Error: "internal server error"})
		}
		s.logger.Warn("transcription request failed", zap.Int("status", status), zap.Error(err))
		return c.Status(status).JSON(errorResponse{Error: err.Error()})
	}

	return c.JSON(transcribeResponse{
		Success:    true,
		Transcript: result.Transcript,
		Title:      result.Title,
		VideoID:    result.VideoID,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, transcribe.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, transcribe.ErrDownloadFailed),
		errors.Is(err, transcribe.ErrTranscriptionFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// handleError is the last line of defense: any error that escapes a handler
// (including recovered panics) still yields the JSON envelope, never a bare
// stack trace.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		s.logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(code).JSON(errorResponse{Error: message})
}
