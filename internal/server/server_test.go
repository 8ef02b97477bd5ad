package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oniontalks/oniontalks/internal/capture"
	"github.com/oniontalks/oniontalks/internal/record"
)

type sessionState struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Recording  bool   `json:"recording"`
	Transcript string `json:"transcript"`
	HasAudio   bool   `json:"has_audio"`
}

func newTestServer(t *testing.T, transcribe TranscribeFunc) *Server {
	t.Helper()

	pcm := make([]byte, 16000*2) // one second of s16le frames
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = byte(i % 128)
	}

	if transcribe == nil {
		transcribe = func(context.Context, string, string) (string, error) {
			return "hello from the test", nil
		}
	}

	srv, err := New(Options{
		Logger:       zap.NewNop(),
		Debug:        true,
		Models:       []string{"base", "medium", "large-v2"},
		DefaultModel: "medium",
		NewRecorder: func(logger *zap.Logger) *record.Session {
			return record.NewSession(capture.NewFakeContext(pcm), record.SessionConfig{
				TempDir: t.TempDir(),
				Logger:  logger,
			})
		},
		Transcribe: transcribe,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, payload
}

func createSession(t *testing.T, srv *Server) sessionState {
	t.Helper()

	resp, body := doJSON(t, srv, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var state sessionState
	require.NoError(t, json.Unmarshal(body, &state))
	require.NotEmpty(t, state.ID)
	return state
}

func TestIndexServesUI(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "OnionTalks")
}

func TestModelsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, []string{"base", "medium", "large-v2"}, payload.Models)
	require.Equal(t, "medium", payload.Default)
}

func TestNewSessionStartsClean(t *testing.T) {
	srv := newTestServer(t, nil)

	state := createSession(t, srv)
	require.Equal(t, "medium", state.Model)
	require.False(t, state.Recording)
	require.Empty(t, state.Transcript)
	require.False(t, state.HasAudio)
}

func TestRecordTranscribeFlow(t *testing.T) {
	var gotModel string
	srv := newTestServer(t, func(_ context.Context, audioPath, model string) (string, error) {
		gotModel = model
		require.NotEmpty(t, audioPath)
		return "the quick brown fox", nil
	})

	state := createSession(t, srv)
	base := "/api/sessions/" + state.ID

	resp, body := doJSON(t, srv, http.MethodPost, base+"/record/start", map[string]string{"model": "base"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &state))
	require.True(t, state.Recording)
	require.Equal(t, "base", state.Model)

	resp, body = doJSON(t, srv, http.MethodPost, base+"/record/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &state))
	require.False(t, state.Recording)
	require.Equal(t, "the quick brown fox", state.Transcript)
	require.True(t, state.HasAudio)
	require.Equal(t, "base", gotModel)
}

func TestTranscriptAndAudioDownloads(t *testing.T) {
	srv := newTestServer(t, nil)
	state := createSession(t, srv)
	base := "/api/sessions/" + state.ID

	resp, _ := doJSON(t, srv, http.MethodGet, base+"/transcript.txt", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodGet, base+"/recording.flac", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, base+"/record/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/record/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodGet, base+"/transcript.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello from the test", string(body))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "transcript.txt")

	resp, body = doJSON(t, srv, http.MethodGet, base+"/recording.flac", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/flac", resp.Header.Get("Content-Type"))
	require.True(t, bytes.HasPrefix(body, []byte("fLaC")))
}

func TestResetClearsTranscriptAndAudioButKeepsModel(t *testing.T) {
	srv := newTestServer(t, nil)
	state := createSession(t, srv)
	base := "/api/sessions/" + state.ID

	doJSON(t, srv, http.MethodPost, base+"/record/start", map[string]string{"model": "large-v2"})
	doJSON(t, srv, http.MethodPost, base+"/record/stop", nil)

	resp, body := doJSON(t, srv, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &state))
	require.Empty(t, state.Transcript)
	require.False(t, state.HasAudio)
	require.Equal(t, "large-v2", state.Model)
}

func TestStartRejectsUnknownModel(t *testing.T) {
	srv := newTestServer(t, nil)
	state := createSession(t, srv)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/sessions/"+state.ID+"/record/start",
		map[string]string{"model": "gigantic"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "unknown model")
}

func TestStopWithoutStartConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	state := createSession(t, srv)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/sessions/"+state.ID+"/record/stop", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, string(body), "nothing recorded")
}

func TestDoubleStartConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	state := createSession(t, srv)
	base := "/api/sessions/" + state.ID

	resp, _ := doJSON(t, srv, http.MethodPost, base+"/record/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/record/start", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTranscriptionErrorIsReported(t *testing.T) {
	srv := newTestServer(t, func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("engine exploded")
	})
	state := createSession(t, srv)
	base := "/api/sessions/" + state.ID

	doJSON(t, srv, http.MethodPost, base+"/record/start", nil)
	resp, body := doJSON(t, srv, http.MethodPost, base+"/record/stop", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, string(body), "engine exploded")
}

func TestUnknownSessionIs404OnEveryRoute(t *testing.T) {
	srv := newTestServer(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/record/start"},
		{http.MethodPost, "/api/sessions/nope/record/stop"},
		{http.MethodPost, "/api/sessions/nope/reset"},
		{http.MethodGet, "/api/sessions/nope/transcript.txt"},
		{http.MethodGet, "/api/sessions/nope/recording.flac"},
	}

	for _, route := range routes {
		resp, body := doJSON(t, srv, route.method, route.path, nil)
		require.Equalf(t, http.StatusNotFound, resp.StatusCode, "%s %s", route.method, route.path)
		require.Containsf(t, string(body), "unknown session", "%s %s", route.method, route.path)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	srv := newTestServer(t, nil)

	first := createSession(t, srv)
	base := "/api/sessions/" + first.ID
	doJSON(t, srv, http.MethodPost, base+"/record/start", nil)
	doJSON(t, srv, http.MethodPost, base+"/record/stop", nil)

	second := createSession(t, srv)
	require.Empty(t, second.Transcript)
	require.False(t, second.HasAudio)
	require.Equal(t, "medium", second.Model)
}
