package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/capture"
	"github.com/mortenfc/rewind/internal/config"
	"github.com/mortenfc/rewind/internal/metrics"
	"github.com/mortenfc/rewind/internal/pipeline"
	"github.com/mortenfc/rewind/internal/storage"
)

type stubCapture struct {
	active   bool
	cfg      audio.Config
	snapshot []byte
	resets   int
}

func (s *stubCapture) Active() bool { return s.active }

func (s *stubCapture) AudioConfig() audio.Config { return s.cfg }

func (s *stubCapture) ResetBuffer() { s.resets++ }

func (s *stubCapture) Snapshot() []byte {
	return append([]byte(nil), s.snapshot...)
}

func (s *stubCapture) GetStats() capture.Stats {
	capacity, _ := s.cfg.BufferCapacityBytes()
	return capture.Stats{
		SessionID: "test-session",
		Active:    s.active,
		Buffer: audio.BufferStats{
			CapacityBytes: capacity,
			SizeBytes:     len(s.snapshot),
		},
	}
}

type stubExtractor struct {
	result *pipeline.Result
	err    error

	gotRaw  []byte
	gotOpts pipeline.Options
	calls   int
}

func (s *stubExtractor) Extract(raw []byte, cfg audio.Config, opts pipeline.Options) (*pipeline.Result, error) {
	s.calls++
	s.gotRaw = raw
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSaver struct {
	path string
	err  error

	saved [][]byte
	stats storage.Stats
}

func (s *stubSaver) SaveMoment(pcm []byte, cfg audio.Config) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, pcm)
	return s.path, nil
}

func (s *stubSaver) GetStats() storage.Stats { return s.stats }

func testAudioConfig() audio.Config {
	return audio.Config{SampleRateHz: 16000, BitDepth: audio.PCM16, BufferSeconds: 30}
}

func newTestServer(t *testing.T, capt *stubCapture, proc *stubExtractor, store *stubSaver) *HTTPServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	return NewHTTPServer(cfg.HTTP, logger, cfg, capt, proc, store, m)
}

func doRequest(h *HTTPServer, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, target, nil)
	h.server.Handler.ServeHTTP(w, r)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 1024)}
	h := newTestServer(t, capt, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "healthy", body["status"])

	components := body["components"].(map[string]interface{})
	captureComp := components["capture"].(map[string]interface{})
	assert.Equal(t, "capturing", captureComp["status"])
	assert.EqualValues(t, 1024, captureComp["buffer_fill"])

	w = doRequest(h, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleHealthIdleCapture(t *testing.T) {
	capt := &stubCapture{active: false, cfg: testAudioConfig()}
	h := newTestServer(t, capt, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	components := body["components"].(map[string]interface{})
	captureComp := components["capture"].(map[string]interface{})
	assert.Equal(t, "idle", captureComp["status"])
}

func TestHandleStatus(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 2048)}
	store := &stubSaver{stats: storage.Stats{SavedMoments: 3, SavedBytes: 9000}}
	h := newTestServer(t, capt, &stubExtractor{}, store)

	w := doRequest(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)

	audioInfo := body["audio"].(map[string]interface{})
	assert.EqualValues(t, 16000, audioInfo["sample_rate"])
	assert.EqualValues(t, 16, audioInfo["bit_depth"])

	captureInfo := body["capture"].(map[string]interface{})
	assert.Equal(t, "test-session", captureInfo["session_id"])

	storageInfo := body["storage"].(map[string]interface{})
	assert.EqualValues(t, 3, storageInfo["saved_moments"])
}

func TestHandleConfig(t *testing.T) {
	h := newTestServer(t, &stubCapture{cfg: testAudioConfig()}, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/config")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)

	audioSection := body["audio"].(map[string]interface{})
	assert.EqualValues(t, 16000, audioSection["sample_rate"])

	vadSection := body["vad"].(map[string]interface{})
	assert.EqualValues(t, 0.5, vadSection["threshold"])
}

func TestHandleRoot(t *testing.T) {
	h := newTestServer(t, &stubCapture{cfg: testAudioConfig()}, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	endpoints := body["endpoints"].(map[string]interface{})
	assert.Contains(t, endpoints, "POST /save")
	assert.Contains(t, endpoints, "GET /metrics")

	w = doRequest(h, http.MethodGet, "/nonexistent")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSave(t *testing.T) {
	snapshot := make([]byte, 32000)
	extracted := make([]byte, 8000)

	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: snapshot}
	proc := &stubExtractor{result: &pipeline.Result{Audio: extracted, Segments: 2, Elapsed: 5 * time.Millisecond}}
	store := &stubSaver{path: "/tmp/recordings/moment_20260825_120000_000.wav"}

	h := newTestServer(t, capt, proc, store)

	w := doRequest(h, http.MethodPost, "/save")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, store.path, body["path"])
	assert.EqualValues(t, 2, body["segments"])
	assert.EqualValues(t, len(snapshot), body["input_bytes"])
	assert.EqualValues(t, len(extracted), body["output_bytes"])

	// One second of 16 kHz 16-bit audio.
	assert.Equal(t, "1s", body["input_duration"])

	require.Len(t, store.saved, 1)
	assert.Equal(t, extracted, store.saved[0])
	assert.Equal(t, snapshot, proc.gotRaw)
}

func TestHandleSaveNoSpeech(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{result: &pipeline.Result{Audio: nil, Segments: 0}}
	store := &stubSaver{path: "/tmp/unused.wav"}

	h := newTestServer(t, capt, proc, store)

	w := doRequest(h, http.MethodPost, "/save")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, false, body["saved"])
	assert.Equal(t, "no speech detected", body["reason"])
	assert.Empty(t, store.saved, "nothing must be written for silent snapshots")
}

func TestHandleSaveEmptyBuffer(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig()}
	proc := &stubExtractor{}

	h := newTestServer(t, capt, proc, &stubSaver{})

	w := doRequest(h, http.MethodPost, "/save")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, proc.calls)
}

func TestHandleSaveExtractionFailure(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{err: errors.New("classifier exploded")}

	h := newTestServer(t, capt, proc, &stubSaver{})

	w := doRequest(h, http.MethodPost, "/save")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSaveStorageFailure(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{result: &pipeline.Result{Audio: make([]byte, 100), Segments: 1}}
	store := &stubSaver{err: errors.New("disk full")}

	h := newTestServer(t, capt, proc, store)

	w := doRequest(h, http.MethodPost, "/save")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSaveMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &stubCapture{cfg: testAudioConfig()}, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/save")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSaveQueryOverrides(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{result: &pipeline.Result{Audio: make([]byte, 100), Segments: 1}}

	h := newTestServer(t, capt, proc, &stubSaver{path: "/tmp/m.wav"})

	w := doRequest(h, http.MethodPost, "/save?padding_ms=120&parallel=true&debug=true")
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, proc.gotOpts.PaddingMs)
	assert.Equal(t, 120, *proc.gotOpts.PaddingMs)
	require.NotNil(t, proc.gotOpts.Parallel)
	assert.True(t, *proc.gotOpts.Parallel)
	assert.Equal(t, "save", proc.gotOpts.DebugBaseName)
}

func TestHandleSaveDefaultOptions(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{result: &pipeline.Result{Audio: make([]byte, 100), Segments: 1}}

	h := newTestServer(t, capt, proc, &stubSaver{path: "/tmp/m.wav"})

	w := doRequest(h, http.MethodPost, "/save")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Nil(t, proc.gotOpts.PaddingMs, "padding override must be absent")
	assert.Nil(t, proc.gotOpts.Parallel, "parallel override must be absent")
	assert.Empty(t, proc.gotOpts.DebugBaseName)
}

func TestHandleSaveInvalidQuery(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{}

	h := newTestServer(t, capt, proc, &stubSaver{})

	for _, target := range []string{
		"/save?padding_ms=abc",
		"/save?padding_ms=-5",
		"/save?parallel=maybe",
		"/save?debug=42x",
	} {
		w := doRequest(h, http.MethodPost, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, "expected 400 for %s", target)
	}

	assert.Zero(t, proc.calls, "invalid queries must not trigger extraction")
}

func TestHandleSaveDebugConfigDefault(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 32000)}
	proc := &stubExtractor{result: &pipeline.Result{Audio: make([]byte, 100), Segments: 1}}
	store := &stubSaver{path: "/tmp/m.wav"}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()
	cfg.Output.SaveDebug = true

	h := NewHTTPServer(cfg.HTTP, logger, cfg, capt, proc, store, metrics.NewMetrics(prometheus.NewRegistry()))

	w := doRequest(h, http.MethodPost, "/save")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "save", proc.gotOpts.DebugBaseName)

	// An explicit debug=false wins over the configured default.
	w = doRequest(h, http.MethodPost, "/save?debug=false")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, proc.gotOpts.DebugBaseName)
}

func TestHandleReset(t *testing.T) {
	capt := &stubCapture{active: true, cfg: testAudioConfig(), snapshot: make([]byte, 512)}
	h := newTestServer(t, capt, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodPost, "/reset")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, capt.resets)

	body := decodeJSON(t, w)
	assert.Equal(t, true, body["reset"])

	w = doRequest(h, http.MethodGet, "/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 1, capt.resets)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &stubCapture{cfg: testAudioConfig()}, &stubExtractor{}, &stubSaver{})

	w := doRequest(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()
	cfg.HTTP.Port = 0 // ephemeral port

	h := NewHTTPServer(cfg.HTTP, logger, cfg,
		&stubCapture{cfg: testAudioConfig()}, &stubExtractor{}, &stubSaver{},
		metrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, h.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.Stop(ctx))
}
