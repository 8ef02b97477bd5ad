package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oniontalks/oniontalks/internal/clipboard"
	"github.com/oniontalks/oniontalks/internal/download"
	"github.com/oniontalks/oniontalks/internal/whisper"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file and print the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := app.transcribeFn(cmd.Context(), args[0], app.cfg.Model.Name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), transcript)
			if isBlankTranscript(transcript) {
				app.log().Warn(noSpeechHint())
				return nil
			}

			if copyToClipboard {
				if err := app.copyTranscript(cmd.Context(), transcript); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy transcript to clipboard")
	return cmd
}

// transcribeAudio is the file-to-text pipeline shared by the web UI and
// the transcribe subcommand: silence gate, model resolution, engine run.
func (a *appState) transcribeAudio(ctx context.Context, audioPath, model string) (string, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	if transcript, skipped, err := a.silenceGateTranscript(audioPath); err != nil {
		return "", err
	} else if skipped {
		return transcript, nil
	}

	resolved, err := a.ensureModelAvailable(ctx, model)
	if err != nil {
		return "", err
	}

	engine, err := whisper.NewCLIEngine(a.log())
	if err != nil {
		return "", err
	}

	a.log().Info("transcribing...",
		zap.String("audio", audioPath),
		zap.String("model", resolved.Path),
		zap.String("language", a.cfg.Model.Language))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	transcript, err := engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: audioPath,
		ModelPath: resolved.Path,
		Language:  a.cfg.Model.Language,
	})
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	return transcript, nil
}

func (a *appState) ensureModelAvailable(ctx context.Context, model string) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.cfg.Model.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `oniontalks setup --model %s` or enable auto-download", resolved.Name, resolved.Path, resolved.Name)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (a *appState) copyTranscript(ctx context.Context, transcript string) error {
	if err := clipboard.CopyText(ctx, transcript); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return nil
		}
		return err
	}
	a.log().Info("transcript copied to clipboard")
	return nil
}
