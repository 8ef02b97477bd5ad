package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type alsaBackend struct{}

func newALSABackend() Backend {
	return &alsaBackend{}
}

func (b *alsaBackend) Name() string {
	return "arecord"
}

func (b *alsaBackend) Available() bool {
	return commandAvailable("arecord")
}

func (b *alsaBackend) Record(ctx context.Context, cfg Config) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(outputDir(cfg.OutputPath), 0o755); err != nil {
		return err
	}

	args := []string{"-f", "S16_LE", "-r", strconv.Itoa(sampleRateOrDefault(cfg.SampleRate)), "-c", strconv.Itoa(channelsOrDefault(cfg.Channels))}
	if cfg.Input != "" {
		args = append(args, "-D", cfg.Input)
	}
	if cfg.Duration > 0 {
		args = append(args, "-d", strconv.Itoa(int(cfg.Duration/time.Second)))
	}
	args = append(args, cfg.OutputPath)

	cmd := exec.CommandContext(ctx, "arecord", args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if cfg.Interactive {
		return runInteractiveCommand(ctx, cmd, cfg.Logger)
	}
	if cfg.Duration > 0 {
		return runTimedCommand(ctx, cmd, cfg.Duration, cfg.Logger)
	}
	return cmd.Run()
}

func (b *alsaBackend) ListDevices(ctx context.Context) (string, error) {
	return commandOutput(ctx, "arecord", "-L")
}

type ffmpegBackend struct {
	format string
}

func newFFMPEGBackend(format string) Backend {
	return &ffmpegBackend{format: format}
}

func (b *ffmpegBackend) Name() string {
	return "ffmpeg"
}

func (b *ffmpegBackend) Available() bool {
	return commandAvailable("ffmpeg")
}

func (b *ffmpegBackend) Record(ctx context.Context, cfg Config) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(outputDir(cfg.OutputPath), 0o755); err != nil {
		return err
	}

	input := cfg.Input
	if input == "" {
		if b.format == "avfoundation" {
			input = ":0"
		} else {
			input = "default"
		}
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-f", b.format, "-i", input}
	if cfg.Duration > 0 {
		args = append(args, "-t", strconv.Itoa(int(cfg.Duration/time.Second)))
	}
	args = append(args,
		"-ac", strconv.Itoa(channelsOrDefault(cfg.Channels)),
		"-ar", strconv.Itoa(sampleRateOrDefault(cfg.SampleRate)),
		"-c:a", "pcm_s16le",
		cfg.OutputPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if cfg.Interactive {
		return runInteractiveCommand(ctx, cmd, cfg.Logger)
	}
	if cfg.Duration > 0 {
		return runTimedCommand(ctx, cmd, cfg.Duration, cfg.Logger)
	}
	return cmd.Run()
}

func (b *ffmpegBackend) ListDevices(ctx context.Context) (string, error) {
	if b.format == "avfoundation" {
		cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
		out, _ := cmd.CombinedOutput()
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return "", fmt.Errorf("ffmpeg returned no device output")
		}
		return trimmed, nil
	}

	var sections []string
	if commandAvailable("pactl") {
		if out, err := commandOutput(ctx, "pactl", "list", "short", "sources"); err == nil {
			sections = append(sections, "PulseAudio/PipeWire sources:\n"+out)
		}
	}
	if commandAvailable("arecord") {
		if out, err := commandOutput(ctx, "arecord", "-L"); err == nil {
			sections = append(sections, "ALSA devices:\n"+out)
		}
	}
	if len(sections) == 0 {
		return "", errors.New("no device listing command available")
	}
	return strings.Join(sections, "\n\n"), nil
}

func sampleRateOrDefault(value int) int {
	if value <= 0 {
		return DefaultSampleRate
	}
	return value
}

func channelsOrDefault(value int) int {
	if value <= 0 {
		return DefaultChannels
	}
	return value
}
