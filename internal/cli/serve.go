package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oniontalks/oniontalks/internal/capture"
	"github.com/oniontalks/oniontalks/internal/logging"
	"github.com/oniontalks/oniontalks/internal/platform"
	"github.com/oniontalks/oniontalks/internal/record"
	"github.com/oniontalks/oniontalks/internal/server"
	"github.com/oniontalks/oniontalks/internal/whisper"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI (the default when no subcommand is given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	bindServeFlags(cmd, app)
	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	// Engine and model problems should surface at startup, not on the
	// first click of the record button.
	if _, err := whisper.NewCLIEngine(a.log()); err != nil {
		return err
	}
	if _, err := a.ensureModelAvailable(ctx, a.cfg.Model.Name); err != nil {
		return err
	}

	captureCtx, err := capture.NewContext()
	if err != nil {
		return fmt.Errorf("open audio capture context: %w", err)
	}
	defer captureCtx.Close()

	var device *capture.DeviceInfo
	if a.cfg.Recording.Input != "" {
		device, err = lookupCaptureDevice(captureCtx, a.cfg.Recording.Input)
		if err != nil {
			return err
		}
	}

	recordingDir, err := platform.ResolveRecordingDir()
	if err != nil {
		return err
	}

	// The broadcast target does not exist yet when the sink logger is
	// built, so the closure goes through this indirection.
	var srv *server.Server
	if a.cfg.Server.Debug {
		a.logger = logging.WithLineSink(a.log(), func(level, message string) {
			if srv != nil {
				srv.Broadcast(level, message)
			}
		})
	}

	models := whisper.ModelNames()
	if _, known := whisper.LookupModel(a.cfg.Model.Name); !known {
		// A custom model path still has to be selectable in the UI.
		models = append(models, a.cfg.Model.Name)
	}

	srv, err = server.New(server.Options{
		Logger:         a.log(),
		Debug:          a.cfg.Server.Debug,
		KeepRecordings: a.cfg.Server.KeepRecordings,
		RecordingDir:   recordingDir,
		Models:         models,
		DefaultModel:   a.cfg.Model.Name,
		NewRecorder: func(logger *zap.Logger) *record.Session {
			return record.NewSession(captureCtx, record.SessionConfig{
				SampleRate: a.cfg.Recording.SampleRate,
				Channels:   a.cfg.Recording.Channels,
				Device:     device,
				Logger:     logger,
			})
		},
		Transcribe: a.transcribeFn,
	})
	if err != nil {
		return err
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(a.cfg.ListenAddr())
	}()

	fmt.Fprintf(a.outWriter(), "OnionTalks listening on http://%s\n", a.cfg.ListenAddr())

	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		a.log().Info("shutting down")
		return srv.Shutdown()
	}
}

func lookupCaptureDevice(captureCtx capture.Context, input string) (*capture.DeviceInfo, error) {
	devices, err := captureCtx.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.ID == input || d.Name == input {
			device := d
			return &device, nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", input)
}
