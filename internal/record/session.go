package record

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oniontalks/oniontalks/internal/audio"
	"github.com/oniontalks/oniontalks/internal/capture"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

var (
	ErrNothingRecorded  = errors.New("nothing recorded")
	ErrAlreadyRecording = errors.New("recording already in progress")
)

// Recording is a finalized buffer of captured audio, persisted as a WAV
// file. PCM stays in memory so callers can archive or re-encode it without
// re-reading the file.
type Recording struct {
	Path       string
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

type SessionConfig struct {
	SampleRate int
	Channels   int
	Device     *capture.DeviceInfo
	TempDir    string
	Logger     *zap.Logger
}

// Session is the start/stop recorder behind the web UI: Start begins
// buffering microphone frames, Stop finalizes the buffer into a temporary
// WAV file. A session records at most one clip at a time and the buffer is
// owned exclusively by the session between Start and Stop.
//
// The capture backend delivers data on its own thread, so the frame buffer
// has its own lock; Start and Stop never hold it while talking to the
// device.
type Session struct {
	captureCtx capture.Context
	cfg        SessionConfig

	mu        sync.Mutex
	device    capture.Device
	recording bool
	started   time.Time

	bufMu     sync.Mutex
	buf       bytes.Buffer
	buffering bool
}

func NewSession(captureCtx capture.Context, cfg SessionConfig) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{captureCtx: captureCtx, cfg: cfg}
}

// Start acquires the capture device and begins buffering. A failure to
// acquire the device is returned to the caller; nothing is retried.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return ErrAlreadyRecording
	}

	device, err := s.captureCtx.NewCapture(s.cfg.Device, capture.Config{
		SampleRate: uint32(s.cfg.SampleRate),
		Channels:   uint32(s.cfg.Channels),
	}, s.append)
	if err != nil {
		return fmt.Errorf("acquire capture device: %w", err)
	}

	s.bufMu.Lock()
	s.buf.Reset()
	s.buffering = true
	s.bufMu.Unlock()

	if err := device.Start(); err != nil {
		s.bufMu.Lock()
		s.buffering = false
		s.bufMu.Unlock()
		device.Close()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.device = device
	s.recording = true
	s.started = time.Now()
	s.cfg.Logger.Debug("recording started", zap.Int("sample_rate", s.cfg.SampleRate))
	return nil
}

func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Stop ends accumulation and writes the buffered audio to a temporary WAV
// file. Stopping a session that never started, or one that captured no
// frames, returns ErrNothingRecorded.
func (s *Session) Stop() (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return Recording{}, ErrNothingRecorded
	}

	s.device.Stop()
	s.device.Close()
	s.device = nil
	s.recording = false
	elapsed := time.Since(s.started)

	s.bufMu.Lock()
	s.buffering = false
	pcm := make([]byte, s.buf.Len())
	copy(pcm, s.buf.Bytes())
	s.buf.Reset()
	s.bufMu.Unlock()

	if len(pcm) == 0 {
		return Recording{}, ErrNothingRecorded
	}

	path, err := s.writeTempWAV(pcm)
	if err != nil {
		return Recording{}, err
	}

	s.cfg.Logger.Debug("recording finished", zap.String("path", path), zap.Duration("elapsed", elapsed))
	return Recording{
		Path:       path,
		PCM:        pcm,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Duration:   elapsed,
	}, nil
}

func (s *Session) append(data []byte, _ uint32) {
	s.bufMu.Lock()
	if s.buffering {
		s.buf.Write(data)
	}
	s.bufMu.Unlock()
}

func (s *Session) writeTempWAV(pcm []byte) (string, error) {
	dir := s.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "oniontalks-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp recording: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp recording: %w", err)
	}

	if err := audio.WriteWAV(path, pcm, s.cfg.SampleRate, s.cfg.Channels); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return filepath.Clean(path), nil
}
