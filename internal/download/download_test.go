package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDownloadFileWritesDestination(t *testing.T) {
	t.Parallel()

	payload := []byte("ggml model bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "models", "ggml-base.bin")
	sum := sha256.Sum256(payload)

	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    dest,
		ExpectedSHA256: hex.EncodeToString(sum[:]),
		NoProgress:     true,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = os.Stat(dest + ".part")
	require.True(t, os.IsNotExist(err))
}

func TestDownloadFileChecksumMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("unexpected content"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.bin")
	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    dest,
		ExpectedSHA256: "0000000000000000000000000000000000000000000000000000000000000000",
		Retries:        1,
		NoProgress:     true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
}

func TestDownloadFileRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.bin")
	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: dest,
		NoProgress:  true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestDownloadFileRequiresURLAndDestination(t *testing.T) {
	t.Parallel()

	require.Error(t, DownloadFile(context.Background(), Options{Destination: "x"}))
	require.Error(t, DownloadFile(context.Background(), Options{URL: "http://example.com"}))
}

func TestVerifyFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.bin")
	payload := []byte("weights")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	sum := sha256.Sum256(payload)
	require.NoError(t, VerifyFileChecksum(path, hex.EncodeToString(sum[:])))
	require.NoError(t, VerifyFileChecksum(path, ""))
	require.Error(t, VerifyFileChecksum(path, "deadbeef"))
}
