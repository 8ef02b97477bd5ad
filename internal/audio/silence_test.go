package audio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSilentWAVDetectsSilence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.wav")
	require.NoError(t, WriteWAV(path, make([]byte, 16000*2), 16000, 1))

	silent, metrics, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.True(t, silent)
	require.True(t, math.IsInf(metrics.RMSdBFS, -1))
	require.True(t, math.IsInf(metrics.PeakdBFS, -1))
	require.EqualValues(t, 16000, metrics.Samples)
}

func TestIsSilentWAVDetectsSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, WriteWAV(path, sineWavePCM(440, 0.25, 16000, 16000), 16000, 1))

	silent, metrics, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.False(t, silent)
	require.Greater(t, metrics.PeakdBFS, -20.0)
	require.Greater(t, metrics.RMSdBFS, -20.0)
}

func TestIsSilentWAVNearSilentBelowThreshold(t *testing.T) {
	t.Parallel()

	// Constant value of 1 LSB is about -90 dBFS.
	pcm := make([]byte, 16000*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 1
	}

	path := filepath.Join(t.TempDir(), "hum.wav")
	require.NoError(t, WriteWAV(path, pcm, 16000, 1))

	silent, metrics, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.True(t, silent)
	require.Less(t, metrics.RMSdBFS, -80.0)
}

func TestMeasureSamplesEmpty(t *testing.T) {
	t.Parallel()

	metrics := MeasureSamples(nil)
	require.True(t, math.IsInf(metrics.RMSdBFS, -1))
	require.Zero(t, metrics.Samples)
}
