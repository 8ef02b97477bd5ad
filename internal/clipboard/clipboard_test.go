package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectPrefersWaylandOverX11(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }

	selected, err := detect("linux")
	require.NoError(t, err)
	require.Equal(t, "wl-copy", selected.name)
}

func TestDetectFallsBackToXclip(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		if name == "xclip" {
			return "/usr/bin/xclip", nil
		}
		return "", errors.New("not found")
	}

	selected, err := detect("linux")
	require.NoError(t, err)
	require.Equal(t, "xclip", selected.name)
	require.True(t, selected.detach)
}

func TestDetectDarwinOnlyUsesPbcopy(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		if name == "pbcopy" {
			return "/usr/bin/pbcopy", nil
		}
		return "", errors.New("not found")
	}

	selected, err := detect("darwin")
	require.NoError(t, err)
	require.Equal(t, "pbcopy", selected.name)
}

func TestDetectReportsUnavailable(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := detect("linux")
	require.ErrorIs(t, err, ErrUnavailable)
}
