package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/otel"

	"github.com/zachfi/radiorelay/pkg/playback"
)

var module = "relay"

var tracer = otel.Tracer("github.com/zachfi/radiorelay/modules/relay")

// Relay forwards the upstream audio stream to each client over its own
// upstream connection.
type Relay struct {
	services.Service
	cfg       *Config
	logger    *slog.Logger
	metrics   *metrics
	transport *http.Transport
	client    *http.Client
}

// New creates and returns a new Relay.
func New(cfg Config, logger slog.Logger, namespace string, reg prometheus.Registerer) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CopyBufferSize <= 0 {
		cfg.CopyBufferSize = defaultCopyBufferSize
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		// Bytes are relayed exactly as the upstream sends them.
		DisableCompression: true,
	}

	r := &Relay{
		cfg:       &cfg,
		logger:    logger.With("module", module),
		metrics:   newMetrics(namespace, reg),
		transport: transport,
		// No client timeout; the stream lives as long as the client stays.
		client: &http.Client{Transport: transport},
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

// Path is where the relay expects to be mounted.
func (r *Relay) Path() string {
	return r.cfg.Path
}

func (r *Relay) starting(_ context.Context) error {
	r.logger.Info("relaying", "upstream", r.cfg.UpstreamURL, "path", r.cfg.Path)
	return nil
}

func (r *Relay) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *Relay) stopping(_ error) error {
	r.logger.Info("stopping")
	r.transport.CloseIdleConnections()
	return nil
}

// setCORSHeaders allows the player to be served from another origin.
func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w)

	switch req.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := tracer.Start(req.Context(), "Relay.ServeHTTP")
	_ = tracing.ErrHandler(span, r.relay(ctx, w), "relay failed", r.logger)
}

// relay serves one StreamSession. Errors before the first byte become a 500
// response; errors after it end the response as is.
func (r *Relay) relay(ctx context.Context, w http.ResponseWriter) error {
	r.metrics.activeSessions.Inc()
	defer r.metrics.activeSessions.Dec()

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.UpstreamURL, nil)
	if err != nil {
		http.Error(w, "Error fetching radio stream", http.StatusInternalServerError)
		return fmt.Errorf("failed to create upstream request: %w", err)
	}
	upstreamReq.Header.Set("Accept", "*/*")

	resp, err := r.client.Do(upstreamReq)
	if err != nil {
		r.metrics.upstreamFailures.WithLabelValues(reasonConnect).Inc()
		http.Error(w, "Error fetching radio stream", http.StatusInternalServerError)
		return fmt.Errorf("%w: %w", playback.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.metrics.upstreamFailures.WithLabelValues(reasonStatus).Inc()
		http.Error(w, fmt.Sprintf("Error fetching radio stream: upstream returned status %d", resp.StatusCode),
			http.StatusInternalServerError)
		return fmt.Errorf("%w: stream request failed with status %d", playback.ErrUpstreamUnavailable, resp.StatusCode)
	}

	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	fw := &flushWriter{w: w, rc: http.NewResponseController(w)}
	n, err := io.CopyBuffer(fw, resp.Body, make([]byte, r.cfg.CopyBufferSize))
	r.metrics.bytesRelayed.Add(float64(n))

	if err != nil {
		if ctx.Err() != nil {
			r.logger.Debug("client disconnected", "written", n)
			return nil
		}
		r.metrics.upstreamFailures.WithLabelValues(reasonInterrupted).Inc()
		return fmt.Errorf("%w: %w", playback.ErrStreamInterrupted, err)
	}

	r.logger.Debug("upstream ended", "written", n)
	return nil
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		_ = f.rc.Flush()
	}
	return n, err
}
