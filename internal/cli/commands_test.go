package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oniontalks/oniontalks/internal/audio"
)

func hermeticArgs(t *testing.T, args ...string) []string {
	t.Helper()
	return append([]string{"--config", filepath.Join(t.TempDir(), "no-config.yaml")}, args...)
}

func TestRecordCommandPrintsOutputPath(t *testing.T) {
	cmd, app := newRootCmd()

	var gotOpts recordOptions
	app.recordFn = func(_ context.Context, opts recordOptions) (string, error) {
		gotOpts = opts
		return "/tmp/recording.wav", nil
	}

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(hermeticArgs(t, "record", "--duration", "3s", "--immediate"))

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "/tmp/recording.wav")
	require.Equal(t, "3s", gotOpts.duration.String())
	require.True(t, gotOpts.immediate)
}

func TestRecordCommandPropagatesError(t *testing.T) {
	cmd, app := newRootCmd()
	app.recordFn = func(context.Context, recordOptions) (string, error) {
		return "", errors.New("no microphone")
	}

	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(hermeticArgs(t, "record"))

	require.ErrorContains(t, cmd.Execute(), "no microphone")
}

func TestTranscribeCommandPrintsTranscript(t *testing.T) {
	cmd, app := newRootCmd()

	var gotPath, gotModel string
	app.transcribeFn = func(_ context.Context, audioPath, model string) (string, error) {
		gotPath = audioPath
		gotModel = model
		return "it is all working", nil
	}

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(hermeticArgs(t, "transcribe", "some.wav", "--model", "base"))

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "it is all working")
	require.Equal(t, "some.wav", gotPath)
	require.Equal(t, "base", gotModel)
}

func TestTranscribeCommandBlankTranscriptIsNotAnError(t *testing.T) {
	cmd, app := newRootCmd()
	app.transcribeFn = func(context.Context, string, string) (string, error) {
		return "[BLANK_AUDIO]", nil
	}

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(hermeticArgs(t, "transcribe", "silence.wav"))

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "[BLANK_AUDIO]")
}

func TestTranscribeCommandRequiresExactlyOneArg(t *testing.T) {
	cmd, _ := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(hermeticArgs(t, "transcribe"))

	require.Error(t, cmd.Execute())
}

func TestVersionCommandPrintsName(t *testing.T) {
	cmd, _ := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(hermeticArgs(t, "version"))

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "oniontalks v")
}

func TestSilentRecordingSkipsTranscription(t *testing.T) {
	_, app := newRootCmd()

	wav := filepath.Join(t.TempDir(), "silence.wav")
	require.NoError(t, audio.WriteWAV(wav, make([]byte, 16000*2), 16000, 1))

	// The gate fires before any model resolution, so no model needs to
	// exist on disk for this to succeed.
	transcript, err := app.transcribeAudio(context.Background(), wav, "medium")
	require.NoError(t, err)
	require.Equal(t, blankAudioToken, transcript)
}

func TestUnknownModelFailsAtResolution(t *testing.T) {
	cmd, app := newRootCmd()
	app.transcribeFn = app.transcribeAudio

	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	wav := filepath.Join(t.TempDir(), "missing.wav")
	cmd.SetArgs(hermeticArgs(t, "transcribe", wav, "--model", "enormous"))

	require.Error(t, cmd.Execute())
}
