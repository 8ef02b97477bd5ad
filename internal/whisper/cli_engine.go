package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EnvEnginePath overrides whisper-cli discovery when set.
const EnvEnginePath = "ONIONTALKS_WHISPER_PATH"

// CLIEngine shells out to a whisper.cpp whisper-cli binary. Model loading,
// device placement, and inference all belong to that binary; this adapter
// only feeds it a model path and an audio path and reads the text back.
type CLIEngine struct {
	Executable string
	Logger     *zap.Logger
}

func NewCLIEngine(logger *zap.Logger) (*CLIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exe, err := findEngineExecutable()
	if err != nil {
		return nil, err
	}

	return &CLIEngine{Executable: exe, Logger: logger}, nil
}

func findEngineExecutable() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvEnginePath)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", EnvEnginePath, err)
		}
		return override, nil
	}

	name := engineBinaryName()
	if found, err := exec.LookPath(name); err == nil {
		return found, nil
	}

	selfExe, err := os.Executable()
	if err == nil {
		for _, candidate := range []string{
			filepath.Join(filepath.Dir(selfExe), name),
			filepath.Join(filepath.Dir(selfExe), "..", "libexec", "whisper", name),
		} {
			if err := ensureExecutable(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("whisper-cli not found on PATH; install whisper.cpp or set %s", EnvEnginePath)
}

func (e *CLIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return "", errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return "", errors.New("model path is required")
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	if err := ensureExecutable(e.Executable); err != nil {
		return "", fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outBase := filepath.Join(os.TempDir(), fmt.Sprintf("oniontalks-%d", time.Now().UnixNano()))
	txtOut := outBase + ".txt"

	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-nt", "-otxt", "-of", outBase}
	lang := strings.TrimSpace(req.Language)
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return "", fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or fix the library path", e.Executable, errText)
		}
		if errText != "" {
			return "", fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
		}
		return "", fmt.Errorf("whisper transcribe failed: %w", err)
	}

	defer os.Remove(txtOut)
	content, err := os.ReadFile(txtOut)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}
