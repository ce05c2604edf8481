package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, upstream string) (*Relay, *httptest.Server) {
	t.Helper()

	cfg := Config{
		UpstreamURL:           upstream,
		Path:                  defaultPath,
		DialTimeout:           time.Second,
		ResponseHeaderTimeout: time.Second,
		CopyBufferSize:        1024,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := New(cfg, *logger, "test", prometheus.NewRegistry())
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return r, srv
}

func requireCORS(t *testing.T, h http.Header) {
	t.Helper()
	require.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type", h.Get("Access-Control-Allow-Headers"))
}

func TestPreflight(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	_, srv := newTestRelay(t, upstream.URL)

	req, err := http.NewRequest(http.MethodOptions, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, body)
	requireCORS(t, resp.Header)
	require.Zero(t, hits.Load(), "preflight must not open an upstream connection")
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newTestRelay(t, "http://127.0.0.1:1")

	resp, err := http.Post(srv.URL, "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "GET, OPTIONS", resp.Header.Get("Allow"))
	requireCORS(t, resp.Header)
}

func TestRelayStream(t *testing.T) {
	audio := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 4096)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/aacp")
		_, _ = w.Write(audio)
	}))
	defer upstream.Close()

	r, srv := newTestRelay(t, upstream.URL)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	requireCORS(t, resp.Header)
	require.Equal(t, audio, got)
	require.Equal(t, float64(len(audio)), testutil.ToFloat64(r.metrics.bytesRelayed))
	require.Zero(t, testutil.ToFloat64(r.metrics.activeSessions))
}

func TestUpstreamStatusFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not audio"))
	}))
	defer upstream.Close()

	r, srv := newTestRelay(t, upstream.URL)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	require.Contains(t, string(body), "503")
	require.NotContains(t, string(body), "not audio")
	requireCORS(t, resp.Header)
	require.Equal(t, 1.0, testutil.ToFloat64(r.metrics.upstreamFailures.WithLabelValues(reasonStatus)))
	require.Zero(t, testutil.ToFloat64(r.metrics.bytesRelayed))
}

func TestUpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	r, srv := newTestRelay(t, url)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	requireCORS(t, resp.Header)
	require.Equal(t, 1.0, testutil.ToFloat64(r.metrics.upstreamFailures.WithLabelValues(reasonConnect)))
}

func TestUpstreamInterrupted(t *testing.T) {
	sent := []byte("first part of the stream")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(sent)
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer upstream.Close()

	r, srv := newTestRelay(t, upstream.URL)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, sent, got, "bytes already sent must arrive untouched")
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.upstreamFailures.WithLabelValues(reasonInterrupted)) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClientDisconnectReleasesUpstream(t *testing.T) {
	upstreamDone := make(chan struct{})

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(upstreamDone)
		chunk := bytes.Repeat([]byte{0xAA}, 512)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer upstream.Close()

	r, srv := newTestRelay(t, upstream.URL)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 1024)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	cancel()
	resp.Body.Close()

	select {
	case <-upstreamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection still open after client disconnect")
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.activeSessions) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOneUpstreamConnectionPerClient(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("audio"))
	}))
	defer upstream.Close()

	_, srv := newTestRelay(t, upstream.URL)

	const clients = 4
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL)
			if err != nil {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(clients), hits.Load())
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{UpstreamURL: "ftp://example.com/stream", Path: defaultPath}
	require.Error(t, cfg.Validate())

	cfg = Config{UpstreamURL: defaultUpstreamURL, Path: "api/radio"}
	require.Error(t, cfg.Validate())

	cfg = Config{UpstreamURL: defaultUpstreamURL, Path: defaultPath}
	require.NoError(t, cfg.Validate())
}
