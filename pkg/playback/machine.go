package playback

import (
	"time"

	"github.com/jpillora/backoff"
)

// Machine owns the PlaybackState of one player. It is not safe for
// concurrent use; callers serialise events, as a browser event loop would.
type Machine struct {
	cfg     Config
	backoff *backoff.Backoff

	status    Status
	isPlaying bool
	attempts  int

	// pending is the token of the armed reconnect timer, zero if none.
	pending   uint64
	lastToken uint64

	awake bool
}

func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg: cfg,
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBackoff,
			Max:    cfg.ReconnectBackoffMax,
			Factor: 2,
		},
		status: StatusIdle,
	}
}

// Delay returns the wait before the nth reconnect attempt, counting from 1:
// min(base * 2^(n-1), max).
func (m *Machine) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return m.backoff.ForAttempt(float64(n - 1))
}

func (m *Machine) State() State {
	return State{
		Status:               m.status,
		IsPlaying:            m.isPlaying,
		ReconnectAttempts:    m.attempts,
		MaxReconnectAttempts: m.cfg.MaxReconnectAttempts,
		ReconnectPending:     m.pending != 0,
	}
}

// Handle applies ev and returns the resulting state together with the side
// effects the caller must carry out, in order. Events that do not apply to
// the current state are ignored and yield no effects.
func (m *Machine) Handle(ev Event) (State, []Effect) {
	var fx []Effect

	switch {
	case ev.Kind == EventPlay:
		fx = m.play()
	case ev.Kind == EventPause:
		fx = m.halt(StatusPaused)
	case ev.Kind == EventStop:
		fx = m.halt(StatusStopped)
	case ev.Kind == EventStarted || ev.Kind == EventPlaying:
		fx = m.playing()
	case ev.Kind == EventWaiting:
		if m.status == StatusPlaying {
			m.status = StatusBuffering
		}
	case ev.Kind.failure():
		fx = m.fail()
	case ev.Kind == EventTimerFired:
		fx = m.timerFired(ev.Token)
	}

	return m.State(), fx
}

func (m *Machine) active() bool {
	switch m.status {
	case StatusLoading, StatusPlaying, StatusBuffering, StatusReconnecting:
		return true
	}
	return false
}

func (m *Machine) play() []Effect {
	switch m.status {
	case StatusLoading, StatusPlaying, StatusBuffering:
		return nil
	}

	fx := m.cancelTimer(nil)
	m.attempts = 0
	m.status = StatusLoading
	m.isPlaying = false

	return append(fx, Effect{Kind: EffectLoadSource})
}

func (m *Machine) halt(to Status) []Effect {
	wasPaused := m.status == StatusPaused
	if !m.active() && !(to == StatusStopped && wasPaused) {
		return nil
	}

	fx := m.cancelTimer(nil)
	if !wasPaused {
		fx = append(fx, Effect{Kind: EffectStopSource})
	}
	fx = m.release(fx)

	m.attempts = 0
	m.status = to
	m.isPlaying = false

	return fx
}

func (m *Machine) playing() []Effect {
	if !m.active() {
		return nil
	}

	fx := m.cancelTimer(nil)
	m.attempts = 0
	m.status = StatusPlaying
	m.isPlaying = true

	if !m.awake {
		m.awake = true
		fx = append(fx, Effect{Kind: EffectAcquireKeepAwake})
	}

	return fx
}

func (m *Machine) fail() []Effect {
	if !m.active() || m.pending != 0 {
		return nil
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.status = StatusError
		m.isPlaying = false
		return m.release([]Effect{{Kind: EffectStopSource}})
	}

	m.lastToken++
	m.pending = m.lastToken
	m.status = StatusReconnecting
	m.isPlaying = true

	next := m.attempts + 1
	return []Effect{{
		Kind:    EffectScheduleReconnect,
		Delay:   m.Delay(next),
		Attempt: next,
		Token:   m.pending,
	}}
}

func (m *Machine) timerFired(token uint64) []Effect {
	if m.status != StatusReconnecting || m.pending == 0 || token != m.pending {
		return nil
	}

	m.pending = 0
	m.attempts++

	return []Effect{{Kind: EffectLoadSource}}
}

func (m *Machine) cancelTimer(fx []Effect) []Effect {
	if m.pending == 0 {
		return fx
	}
	fx = append(fx, Effect{Kind: EffectCancelReconnect, Token: m.pending})
	m.pending = 0
	return fx
}

func (m *Machine) release(fx []Effect) []Effect {
	if !m.awake {
		return fx
	}
	m.awake = false
	return append(fx, Effect{Kind: EffectReleaseKeepAwake})
}
