// Package clipboard copies text through whatever clipboard tool the host
// offers. There is no portable clipboard API without cgo, so the usual
// command-line helpers are shelled out to instead.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type tool struct {
	name string
	args []string
	// xclip owns the X selection for as long as it runs, so it has to be
	// left behind as a detached process instead of being waited on.
	detach bool
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func candidates(goos string) []tool {
	if goos == "darwin" {
		return []tool{{name: "pbcopy"}}
	}
	return []tool{
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detach: true},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	}
}

// CopyText places value on the system clipboard.
func CopyText(ctx context.Context, value string) error {
	selected, err := detect(runtime.GOOS)
	if err != nil {
		return err
	}

	if selected.detach {
		return copyDetached(selected, value)
	}

	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(copyCtx, selected.name, selected.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard with %s: %w", selected.name, err)
	}
	return nil
}

func detect(goos string) (tool, error) {
	for _, candidate := range candidates(goos) {
		if _, err := lookPath(candidate.name); err == nil {
			return candidate, nil
		}
	}
	return tool{}, ErrUnavailable
}

func copyDetached(selected tool, value string) error {
	cmd := exec.Command(selected.name, selected.args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", selected.name, err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = cmd.Process.Release()
	return nil
}
