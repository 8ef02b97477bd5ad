package record

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oniontalks/oniontalks/internal/capture"
)

// captureBackend records in-process through the capture package instead of
// shelling out. It is the first choice on every platform; the exec backends
// remain as fallbacks for systems where miniaudio cannot open a device.
type captureBackend struct {
	newContext func() (capture.Context, error)
}

func newCaptureBackend() Backend {
	return &captureBackend{newContext: capture.NewContext}
}

func (b *captureBackend) Name() string {
	return "capture"
}

func (b *captureBackend) Available() bool {
	// Context init is deferred to Record; a device-less system fails there
	// and the fallback chain moves on.
	return true
}

func (b *captureBackend) Record(ctx context.Context, cfg Config) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(outputDir(cfg.OutputPath), 0o755); err != nil {
		return err
	}

	captureCtx, err := b.newContext()
	if err != nil {
		return err
	}
	defer captureCtx.Close()

	var device *capture.DeviceInfo
	if cfg.Input != "" {
		device, err = findDevice(captureCtx, cfg.Input)
		if err != nil {
			return err
		}
	}

	session := NewSession(captureCtx, SessionConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Device:     device,
		Logger:     cfg.Logger,
	})

	if err := session.Start(); err != nil {
		return err
	}

	if cfg.Interactive {
		if err := WaitForEnter(os.Stdin, os.Stderr, "Recording... press Enter to stop."); err != nil {
			_, _ = session.Stop()
			return err
		}
	} else {
		duration := cfg.Duration
		if duration <= 0 {
			duration = time.Second
		}
		timer := time.NewTimer(duration)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			_, _ = session.Stop()
			return ctx.Err()
		}
	}

	rec, err := session.Stop()
	if err != nil {
		return err
	}
	defer os.Remove(rec.Path)

	if err := os.Rename(rec.Path, cfg.OutputPath); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		data, readErr := os.ReadFile(rec.Path)
		if readErr != nil {
			return fmt.Errorf("move recording into place: %w", err)
		}
		if writeErr := os.WriteFile(cfg.OutputPath, data, 0o644); writeErr != nil {
			return fmt.Errorf("move recording into place: %w", writeErr)
		}
	}

	return nil
}

func (b *captureBackend) ListDevices(ctx context.Context) (string, error) {
	captureCtx, err := b.newContext()
	if err != nil {
		return "", err
	}
	defer captureCtx.Close()

	devices, err := captureCtx.Devices()
	if err != nil {
		return "", err
	}

	var lines []string
	for _, d := range devices {
		lines = append(lines, fmt.Sprintf("%s\t%s", d.ID, d.Name))
	}
	if len(lines) == 0 {
		return "no capture devices found", nil
	}
	return strings.Join(lines, "\n"), nil
}

func findDevice(captureCtx capture.Context, input string) (*capture.DeviceInfo, error) {
	devices, err := captureCtx.Devices()
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if d.ID == input || strings.EqualFold(d.Name, input) {
			device := d
			return &device, nil
		}
	}

	return nil, fmt.Errorf("capture device %q not found", input)
}
