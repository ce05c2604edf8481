package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grafana/dskit/services"
	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zachfi/radiorelay/pkg/keepawake"
	"github.com/zachfi/radiorelay/pkg/playback"
	"github.com/zachfi/radiorelay/pkg/shoutcast"
)

var module = "player"

// ErrNotRunning is returned by control calls once the player has stopped.
var ErrNotRunning = errors.New("player is not running")

type event struct {
	playback.Event

	// gen is the source session an event came from; zero for user input and
	// timers.
	gen uint64

	// retryKeepAwake asks for the keep-awake hold again after it was lost.
	retryKeepAwake bool

	reply chan playback.State
}

// Player drives a playback.Machine against a real audio source. All events
// are handled one at a time on the goroutine running the service.
type Player struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics

	clock     clock.Clock
	source    Source
	sink      io.Writer
	keepAwake keepawake.KeepAwake
	recorder  *Recorder

	events chan event
	done   chan struct{}

	// Owned by the event loop.
	machine       *playback.Machine
	gen           uint64
	cancelSession context.CancelFunc
	timer         *clock.Timer
	sessions      sync.WaitGroup

	// Keep-awake re-requests, also owned by the event loop.
	awakeBackoff *backoff.Backoff
	awakeTimer   *clock.Timer
	awakeSince   time.Time

	mu    sync.RWMutex
	state playback.State
}

// Option overrides a collaborator of the Player.
type Option func(*Player)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithSource replaces the stream source built from the config.
func WithSource(s Source) Option {
	return func(p *Player) { p.source = s }
}

// WithKeepAwake replaces the keep-awake capability built from the config.
func WithKeepAwake(k keepawake.KeepAwake) Option {
	return func(p *Player) { p.keepAwake = k }
}

// WithSink receives the played audio instead of discarding it.
func WithSink(w io.Writer) Option {
	return func(p *Player) { p.sink = w }
}

// New creates and returns a new Player.
func New(cfg Config, logger slog.Logger, namespace string, reg prometheus.Registerer, opts ...Option) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = defaultWriteBufferSize
	}

	p := &Player{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		metrics: newMetrics(namespace, reg),
		clock:   clock.New(),
		sink:    io.Discard,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
		machine: playback.NewMachine(cfg.Playback),
		awakeBackoff: &backoff.Backoff{
			Min:    cfg.KeepAwake.RetryBackoff,
			Max:    cfg.KeepAwake.RetryBackoffMax,
			Factor: 2,
		},
	}

	for _, o := range opts {
		o(p)
	}

	if p.keepAwake == nil {
		k, err := keepawake.New(cfg.KeepAwake)
		if err != nil {
			return nil, err
		}
		p.keepAwake = k
	}

	var onTitle TitleFunc
	if cfg.Dir != "" {
		p.recorder = NewRecorder(cfg.Dir, cfg.WriteBufferSize, p.clock, p.logger)
		p.sink = p.recorder
		onTitle = p.recorder.Rotate
	}

	if p.source == nil {
		client := shoutcast.NewClient(cfg.DialTimeout, cfg.ResponseHeaderTimeout)
		p.source = NewStreamSource(client, cfg.SourceURL, onTitle)
	}

	p.state = p.machine.State()
	p.metrics.setStatus(p.state.Status)

	p.Service = services.NewBasicService(p.starting, p.running, p.stopping)

	return p, nil
}

func (p *Player) starting(_ context.Context) error {
	if p.recorder != nil {
		p.recorder.Start()
	}
	if p.cfg.Autoplay {
		p.post(event{Event: playback.Event{Kind: playback.EventPlay}})
	}
	return nil
}

func (p *Player) running(ctx context.Context) error {
	defer close(p.done)

	var released <-chan struct{}
	if n, ok := p.keepAwake.(keepawake.Notifier); ok {
		released = n.Released()
	}

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil

		case ev := <-p.events:
			p.handle(ctx, ev)

		case <-released:
			p.keepAwakeLost()
		}
	}
}

func (p *Player) stopping(_ error) error {
	p.logger.Info("stopping")

	if p.recorder != nil {
		return p.recorder.Close()
	}
	return nil
}

// Play starts playback from a fresh state.
func (p *Player) Play(ctx context.Context) (playback.State, error) {
	return p.request(ctx, playback.EventPlay)
}

// Pause stops playback, keeping it resumable with Play.
func (p *Player) Pause(ctx context.Context) (playback.State, error) {
	return p.request(ctx, playback.EventPause)
}

// Stop stops playback.
func (p *Player) Stop(ctx context.Context) (playback.State, error) {
	return p.request(ctx, playback.EventStop)
}

// Status returns the current playback state.
func (p *Player) Status() playback.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) request(ctx context.Context, kind playback.EventKind) (playback.State, error) {
	reply := make(chan playback.State, 1)

	select {
	case p.events <- event{Event: playback.Event{Kind: kind}, reply: reply}:
	case <-p.done:
		return p.Status(), ErrNotRunning
	case <-ctx.Done():
		return p.Status(), ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-p.done:
		return p.Status(), ErrNotRunning
	case <-ctx.Done():
		return p.Status(), ctx.Err()
	}
}

// post queues an event for the loop. Events posted after the loop exits
// are dropped.
func (p *Player) post(ev event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Player) handle(ctx context.Context, ev event) {
	if ev.retryKeepAwake {
		p.awakeTimer = nil
		if p.machine.State().IsPlaying {
			p.requestKeepAwake(ctx)
		}
		return
	}

	if ev.gen != 0 && ev.gen != p.gen {
		p.logger.Debug("dropping event from old session", "event", ev.Kind, "session", ev.gen)
		return
	}

	before := p.machine.State()
	st, fx := p.machine.Handle(ev.Event)

	for _, e := range fx {
		p.apply(ctx, e)
	}

	if st.Status != before.Status {
		args := []any{"event", ev.Kind, "from", before.Status, "to", st.Status, "attempts", st.ReconnectAttempts}
		if ev.Err != nil {
			args = append(args, "err", ev.Err)
		}
		p.logger.Info(st.Message(), args...)
	}

	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
	p.metrics.setStatus(st.Status)

	if ev.reply != nil {
		ev.reply <- st
	}
}

func (p *Player) apply(ctx context.Context, e playback.Effect) {
	switch e.Kind {
	case playback.EffectLoadSource:
		p.stopSession()

		sctx, cancel := context.WithCancel(ctx)
		p.cancelSession = cancel
		p.sessions.Add(1)
		go p.runSession(sctx, p.gen)

	case playback.EffectStopSource:
		p.stopSession()

	case playback.EffectScheduleReconnect:
		p.stopTimer()

		token := e.Token
		p.timer = p.clock.AfterFunc(e.Delay, func() {
			p.post(event{Event: playback.Event{Kind: playback.EventTimerFired, Token: token}})
		})
		p.metrics.reconnects.Inc()
		p.logger.Warn("reconnect scheduled", "attempt", e.Attempt, "max", p.cfg.Playback.MaxReconnectAttempts, "delay", e.Delay)

	case playback.EffectCancelReconnect:
		p.stopTimer()

	case playback.EffectAcquireKeepAwake:
		p.stopKeepAwakeRetry()
		p.awakeBackoff.Reset()
		p.requestKeepAwake(ctx)

	case playback.EffectReleaseKeepAwake:
		p.stopKeepAwakeRetry()
		if err := p.keepAwake.Release(); err != nil {
			p.metrics.keepAwakeFailures.Inc()
			p.logger.Warn("keep-awake release failed", "err", err)
		}
	}
}

func (p *Player) requestKeepAwake(ctx context.Context) {
	p.awakeSince = p.clock.Now()
	if err := p.keepAwake.Request(ctx); err != nil {
		p.metrics.keepAwakeFailures.Inc()
		p.logger.Warn("keep-awake not available", "err", errors.Join(playback.ErrCapabilityUnavailable, err))
	}
}

// keepAwakeLost schedules a new keep-awake request after the hold ended on
// its own. Holds that keep ending quickly are given up on until playback
// starts again.
func (p *Player) keepAwakeLost() {
	if !p.machine.State().IsPlaying || p.awakeTimer != nil {
		return
	}

	if p.clock.Now().Sub(p.awakeSince) >= p.cfg.KeepAwake.MinHold {
		p.awakeBackoff.Reset()
	}

	if int(p.awakeBackoff.Attempt()) >= p.cfg.KeepAwake.MaxRetries {
		p.metrics.keepAwakeFailures.Inc()
		p.logger.Warn("keep-awake keeps being released, not requesting again until playback restarts",
			"retries", p.cfg.KeepAwake.MaxRetries)
		return
	}

	d := p.awakeBackoff.Duration()
	p.awakeTimer = p.clock.AfterFunc(d, func() {
		p.post(event{retryKeepAwake: true})
	})
	p.metrics.keepAwakeRetries.Inc()
	p.logger.Info("keep-awake released, requesting again", "delay", d)
}

func (p *Player) stopKeepAwakeRetry() {
	if p.awakeTimer != nil {
		p.awakeTimer.Stop()
		p.awakeTimer = nil
	}
}

// stopSession cancels the running source session, if any. Bumping the
// generation makes any event it still posts stale.
func (p *Player) stopSession() {
	p.gen++
	if p.cancelSession != nil {
		p.cancelSession()
		p.cancelSession = nil
	}
}

func (p *Player) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) shutdown() {
	p.stopTimer()
	p.stopKeepAwakeRetry()
	p.stopSession()
	p.sessions.Wait()

	if err := p.keepAwake.Release(); err != nil {
		p.logger.Warn("keep-awake release failed", "err", err)
	}
}
