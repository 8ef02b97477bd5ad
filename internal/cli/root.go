package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/oniontalks/oniontalks/internal/audio"
	"github.com/oniontalks/oniontalks/internal/config"
	"github.com/oniontalks/oniontalks/internal/logging"
	"github.com/oniontalks/oniontalks/internal/platform"
	"github.com/oniontalks/oniontalks/internal/version"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	configPath string

	cfg config.Config

	logger *zap.Logger
	now    func() time.Time
	out    io.Writer

	transcribeFn func(ctx context.Context, audioPath, model string) (string, error)
	recordFn     func(ctx context.Context, opts recordOptions) (string, error)
}

// NewRootCmd builds the command tree. Running the binary without a
// subcommand serves the web UI, which is how the app is normally used.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *appState) {
	app := &appState{
		cfg: config.Default(),
		now: time.Now,
		out: os.Stdout,
	}
	app.transcribeFn = app.transcribeAudio
	app.recordFn = app.recordAudio

	cmd := &cobra.Command{
		Use:           "oniontalks",
		Short:         "Local speech-to-text with a web UI",
		Long:          "OnionTalks records microphone audio and transcribes it with a local whisper engine.\nWithout a subcommand it serves the web UI on localhost.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return app.loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.BoolVar(&app.verbose, "verbose", false, "Enable verbose logs")
	pf.BoolVar(&app.jsonLogs, "json", false, "Enable JSON logging")
	pf.BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
	pf.StringVar(&app.configPath, "config", "", "Config file path (default: per-user config dir)")
	pf.StringVar(&app.cfg.Model.Name, "model", app.cfg.Model.Name, "Model name or model file path")
	pf.StringVar(&app.cfg.Model.Dir, "model-dir", app.cfg.Model.Dir, "Directory where models are stored")
	pf.StringVar(&app.cfg.Model.Language, "language", app.cfg.Model.Language, "Language code (auto|en|de|...) for transcription")
	pf.BoolVar(&app.cfg.Model.AutoDownload, "auto-download", app.cfg.Model.AutoDownload, "Automatically download missing models")

	bindServeFlags(cmd, app)
	bindRecordingFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newRecordCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd, app
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	f := cmd.Flags()
	f.StringVar(&app.cfg.Server.Bind, "bind", app.cfg.Server.Bind, "Address to bind the web UI to")
	f.IntVar(&app.cfg.Server.Port, "port", app.cfg.Server.Port, "Port to serve the web UI on")
	f.BoolVar(&app.cfg.Server.Debug, "debug", app.cfg.Server.Debug, "Mirror logs into the web UI debug sidebar")
	f.BoolVar(&app.cfg.Server.KeepRecordings, "keep-recordings", app.cfg.Server.KeepRecordings, "Archive recordings as FLAC files on disk")
}

func bindRecordingFlags(cmd *cobra.Command, app *appState) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&app.cfg.Recording.Backend, "backend", app.cfg.Recording.Backend, "Recording backend: auto|capture|arecord|ffmpeg")
	pf.StringVar(&app.cfg.Recording.Input, "input", app.cfg.Recording.Input, "Input device (run \"oniontalks devices\" to list)")
	pf.BoolVar(&app.cfg.Recording.SilenceGate, "silence-gate", app.cfg.Recording.SilenceGate, "Detect near-silent audio and skip transcription")
	pf.Float64Var(&app.cfg.Recording.SilenceThresholdDBFS, "silence-threshold-dbfs", app.cfg.Recording.SilenceThresholdDBFS, "Silence gate threshold in dBFS")
}

// loadConfig merges the config file and environment under any flags the
// user set explicitly. Flags always win.
func (a *appState) loadConfig(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		resolved, err := platform.ResolveConfigFile()
		if err != nil {
			return err
		}
		path = resolved
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	flagged := a.cfg
	a.cfg = loaded
	restoreChangedFlags(cmd, &a.cfg, flagged)

	a.cfg.Model.Language = sanitizeLanguage(a.cfg.Model.Language)
	return a.cfg.Validate()
}

func restoreChangedFlags(cmd *cobra.Command, cfg *config.Config, flagged config.Config) {
	set := func(name string) bool {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			return true
		}
		root := cmd.Root()
		if flag := root.PersistentFlags().Lookup(name); flag != nil && flag.Changed {
			return true
		}
		return false
	}

	if set("model") {
		cfg.Model.Name = flagged.Model.Name
	}
	if set("model-dir") {
		cfg.Model.Dir = flagged.Model.Dir
	}
	if set("language") {
		cfg.Model.Language = flagged.Model.Language
	}
	if set("auto-download") {
		cfg.Model.AutoDownload = flagged.Model.AutoDownload
	}
	if set("bind") {
		cfg.Server.Bind = flagged.Server.Bind
	}
	if set("port") {
		cfg.Server.Port = flagged.Server.Port
	}
	if set("debug") {
		cfg.Server.Debug = flagged.Server.Debug
	}
	if set("keep-recordings") {
		cfg.Server.KeepRecordings = flagged.Server.KeepRecordings
	}
	if set("backend") {
		cfg.Recording.Backend = flagged.Recording.Backend
	}
	if set("input") {
		cfg.Recording.Input = flagged.Recording.Input
	}
	if set("silence-gate") {
		cfg.Recording.SilenceGate = flagged.Recording.SilenceGate
	}
	if set("silence-threshold-dbfs") {
		cfg.Recording.SilenceThresholdDBFS = flagged.Recording.SilenceThresholdDBFS
	}
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.Model.Dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) recordingOutputPath(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		if err := os.MkdirAll(filepath.Dir(override), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return override, nil
	}

	recordingDir, err := platform.ResolveRecordingDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(recordingDir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory %s: %w", recordingDir, err)
	}

	return filepath.Join(recordingDir, fmt.Sprintf("recording-%s.wav", a.now().Format("20060102-150405"))), nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

// silenceGateTranscript short-circuits transcription for near-silent WAV
// input, saving a pointless engine run on a muted mic.
func (a *appState) silenceGateTranscript(audioPath string) (string, bool, error) {
	if !a.cfg.Recording.SilenceGate {
		return "", false, nil
	}

	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return "", false, nil
	}

	silent, metrics, err := audio.IsSilentWAV(audioPath, a.cfg.Recording.SilenceThresholdDBFS)
	if err != nil {
		a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", audioPath))
		return "", false, nil
	}

	if !silent {
		return "", false, nil
	}

	a.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", a.cfg.Recording.SilenceThresholdDBFS),
	)

	return blankAudioToken, true, nil
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
