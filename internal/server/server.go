package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/oniontalks/oniontalks/internal/encoder"
	"github.com/oniontalks/oniontalks/internal/record"
)

// TranscribeFunc runs the full file-to-text pipeline: silence gate, model
// resolution (downloading when allowed), and engine inference.
type TranscribeFunc func(ctx context.Context, audioPath, model string) (string, error)

// NewRecorderFunc builds the per-session recorder over the shared capture
// context.
type NewRecorderFunc func(logger *zap.Logger) *record.Session

type Options struct {
	Logger         *zap.Logger
	Debug          bool
	KeepRecordings bool
	RecordingDir   string
	Models         []string
	DefaultModel   string
	NewRecorder    NewRecorderFunc
	Transcribe     TranscribeFunc
}

// Server is the local web UI: one page, a small JSON API, and a websocket
// event stream per session. Recording and transcription stay strictly
// sequential within a session.
type Server struct {
	app      *fiber.App
	opts     Options
	sessions *sessionManager
}

func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewRecorder == nil {
		return nil, errors.New("recorder constructor is required")
	}
	if opts.Transcribe == nil {
		return nil, errors.New("transcribe function is required")
	}
	if len(opts.Models) == 0 {
		return nil, errors.New("at least one model is required")
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = opts.Models[0]
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "OnionTalks",
			DisableStartupMessage: true,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				var fiberErr *fiber.Error
				if errors.As(err, &fiberErr) {
					code = fiberErr.Code
				}
				return c.Status(code).JSON(fiber.Map{"error": err.Error()})
			},
		}),
		opts:     opts,
		sessions: newSessionManager(),
	}
	s.routes()
	return s, nil
}

// App exposes the fiber app for handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.opts.Logger.Info("web UI listening", zap.String("addr", "http://"+addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// Broadcast mirrors a log line into every session's debug stream.
func (s *Server) Broadcast(level, message string) {
	for _, session := range s.sessions.All() {
		session.publish(Event{Type: "log", Message: level + ": " + message})
	}
}

func (s *Server) routes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/api/models", s.handleModels)

	s.app.Post("/api/sessions", s.handleCreateSession)
	s.app.Get("/api/sessions/:id", s.handleSessionState)
	s.app.Post("/api/sessions/:id/record/start", s.handleRecordStart)
	s.app.Post("/api/sessions/:id/record/stop", s.handleRecordStop)
	s.app.Post("/api/sessions/:id/reset", s.handleReset)
	s.app.Get("/api/sessions/:id/transcript.txt", s.handleTranscriptDownload)
	s.app.Get("/api/sessions/:id/recording.flac", s.handleRecordingDownload)

	s.app.Use("/api/sessions/:id/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/api/sessions/:id/events", websocket.New(s.handleEvents))
}

func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  s.opts.Models,
		"default": s.opts.DefaultModel,
	})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	session := newSession(s.opts.NewRecorder(s.opts.Logger), s.opts.DefaultModel)
	s.sessions.Add(session)
	s.opts.Logger.Debug("session created", zap.String("session", session.ID))
	return c.Status(fiber.StatusCreated).JSON(s.stateJSON(session))
}

func (s *Server) handleSessionState(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(s.stateJSON(session))
}

type recordStartRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleRecordStart(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}

	var req recordStartRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Model != "" {
		if !s.knownModel(req.Model) {
			return errorJSON(c, fiber.StatusBadRequest,
				fmt.Sprintf("unknown model %q (known models: %s)", req.Model, strings.Join(s.opts.Models, ", ")))
		}
		session.SetModel(req.Model)
	}

	if err := session.Recorder().Start(); err != nil {
		if errors.Is(err, record.ErrAlreadyRecording) {
			return errorJSON(c, fiber.StatusConflict, "recording already in progress")
		}
		s.opts.Logger.Error("failed to start recording", zap.String("session", session.ID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "microphone unavailable: "+err.Error())
	}

	s.opts.Logger.Info("recording started", zap.String("session", session.ID), zap.String("model", session.Model()))
	session.publish(Event{Type: "recording_started"})
	s.debugf(session, "recording started with model %s", session.Model())
	return c.JSON(s.stateJSON(session))
}

func (s *Server) handleRecordStop(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}

	rec, err := session.Recorder().Stop()
	if err != nil {
		if errors.Is(err, record.ErrNothingRecorded) {
			session.publish(Event{Type: "error", Message: "nothing recorded"})
			return errorJSON(c, fiber.StatusConflict, "nothing recorded")
		}
		s.opts.Logger.Error("failed to stop recording", zap.String("session", session.ID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	defer func() {
		if err := os.Remove(rec.Path); err != nil {
			s.opts.Logger.Warn("failed to remove recording", zap.String("path", rec.Path), zap.Error(err))
		}
	}()

	s.debugf(session, "recording stopped after %s, %d bytes of audio", rec.Duration.Round(time.Millisecond), len(rec.PCM))
	s.archiveRecording(session, rec)

	session.publish(Event{Type: "transcribing"})
	s.debugf(session, "transcribing %s with model %s", rec.Path, session.Model())

	started := time.Now()
	transcript, err := s.opts.Transcribe(c.Context(), rec.Path, session.Model())
	if err != nil {
		s.opts.Logger.Warn("transcription failed", zap.String("session", session.ID), zap.Error(err))
		session.publish(Event{Type: "error", Message: err.Error()})
		return errorJSON(c, fiber.StatusBadGateway, "transcription failed: "+err.Error())
	}

	s.opts.Logger.Info("transcription finished",
		zap.String("session", session.ID),
		zap.Duration("elapsed", time.Since(started)))

	session.SetTranscript(transcript)
	session.publish(Event{Type: "transcript", Transcript: transcript})
	s.debugf(session, "transcript: %q", transcript)
	return c.JSON(s.stateJSON(session))
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}

	session.Reset()
	session.publish(Event{Type: "reset"})
	s.debugf(session, "session state cleared")
	return c.JSON(s.stateJSON(session))
}

func (s *Server) handleTranscriptDownload(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}

	transcript := session.Transcript()
	if transcript == "" {
		return errorJSON(c, fiber.StatusNotFound, "no transcript yet")
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="transcript.txt"`)
	c.Type("txt")
	return c.SendString(transcript)
}

func (s *Server) handleRecordingDownload(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}

	audio := session.Audio()
	if len(audio) == 0 {
		return errorJSON(c, fiber.StatusNotFound, "no recording yet")
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="recording.flac"`)
	c.Set(fiber.HeaderContentType, "audio/flac")
	return c.Send(audio)
}

func (s *Server) handleEvents(conn *websocket.Conn) {
	defer conn.Close()

	session, ok := s.sessions.Get(conn.Params("id"))
	if !ok {
		_ = conn.WriteJSON(Event{Type: "error", Message: "unknown session"})
		return
	}

	ch := session.Subscribe()
	defer session.Unsubscribe(ch)

	// Reader goroutine: we only care about the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-ch:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) archiveRecording(session *Session, rec record.Recording) {
	flacBytes, err := encoder.EncodeFLAC(rec.PCM, rec.SampleRate)
	if err != nil {
		s.opts.Logger.Warn("failed to encode recording", zap.Error(err))
		return
	}
	session.SetAudio(flacBytes)

	if !s.opts.KeepRecordings || s.opts.RecordingDir == "" {
		return
	}

	if err := os.MkdirAll(s.opts.RecordingDir, 0o755); err != nil {
		s.opts.Logger.Warn("failed to create recording directory", zap.Error(err))
		return
	}

	path := fmt.Sprintf("%s/recording-%s.flac", s.opts.RecordingDir, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(path, flacBytes, 0o644); err != nil {
		s.opts.Logger.Warn("failed to archive recording", zap.String("path", path), zap.Error(err))
		return
	}
	s.debugf(session, "recording archived at %s", path)
}

// session resolves the :id parameter. An unknown ID yields a non-nil
// error, rendered as a JSON 404 by the app's error handler; the session is
// nil in that case.
func (s *Server) session(c *fiber.Ctx) (*Session, error) {
	session, ok := s.sessions.Get(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "unknown session")
	}
	return session, nil
}

func (s *Server) stateJSON(session *Session) fiber.Map {
	return fiber.Map{
		"id":         session.ID,
		"model":      session.Model(),
		"recording":  session.Recorder().Recording(),
		"transcript": session.Transcript(),
		"has_audio":  len(session.Audio()) > 0,
	}
}

func (s *Server) knownModel(name string) bool {
	for _, model := range s.opts.Models {
		if model == name {
			return true
		}
	}
	return false
}

func (s *Server) debugf(session *Session, format string, args ...any) {
	if !s.opts.Debug {
		return
	}
	session.publish(Event{Type: "log", Message: fmt.Sprintf(format, args...)})
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
