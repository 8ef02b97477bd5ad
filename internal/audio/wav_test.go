package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWavePCM(freq float64, amplitude float64, n int, sampleRate int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestWriteWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := sineWavePCM(440, 0.25, 16000, 16000)
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, WriteWAV(path, pcm, 16000, 1))

	samples, rate, channels, err := ReadWAV(path)
	require.NoError(t, err)
	require.Equal(t, 16000, rate)
	require.Equal(t, 1, channels)
	require.Len(t, samples, 16000)
	require.Equal(t, int16(binary.LittleEndian.Uint16(pcm[2:])), samples[1])
}

func TestWriteWAVRejectsUnalignedPCM(t *testing.T) {
	t.Parallel()

	err := WriteWAV(filepath.Join(t.TempDir(), "bad.wav"), []byte{0x01}, 16000, 1)
	require.Error(t, err)
}

func TestWriteWAVRejectsInvalidFormat(t *testing.T) {
	t.Parallel()

	err := WriteWAV(filepath.Join(t.TempDir(), "bad.wav"), []byte{0x01, 0x02}, 0, 1)
	require.Error(t, err)
}

func TestReadWAVInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-wav.wav")
	require.NoError(t, os.WriteFile(path, []byte("hello there"), 0o644))

	_, _, _, err := ReadWAV(path)
	require.Error(t, err)
}
