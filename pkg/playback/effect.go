package playback

import (
	"fmt"
	"time"
)

// EffectKind identifies a side effect the caller must carry out.
type EffectKind int

const (
	// EffectLoadSource (re)initialises the audio source from the stream URL
	// and starts playback.
	EffectLoadSource EffectKind = iota
	// EffectStopSource stops playback and releases the source.
	EffectStopSource
	// EffectScheduleReconnect arms the reconnect timer. When it fires the
	// caller posts EventTimerFired with the same Token.
	EffectScheduleReconnect
	// EffectCancelReconnect disarms the pending reconnect timer.
	EffectCancelReconnect
	EffectAcquireKeepAwake
	EffectReleaseKeepAwake
)

func (k EffectKind) String() string {
	switch k {
	case EffectLoadSource:
		return "load-source"
	case EffectStopSource:
		return "stop-source"
	case EffectScheduleReconnect:
		return "schedule-reconnect"
	case EffectCancelReconnect:
		return "cancel-reconnect"
	case EffectAcquireKeepAwake:
		return "acquire-keep-awake"
	case EffectReleaseKeepAwake:
		return "release-keep-awake"
	default:
		return "unknown"
	}
}

// Effect is one side effect produced by a transition.
type Effect struct {
	Kind EffectKind

	// Delay, Attempt and Token are set for EffectScheduleReconnect. Token is
	// also set for EffectCancelReconnect.
	Delay   time.Duration
	Attempt int
	Token   uint64
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectScheduleReconnect:
		return fmt.Sprintf("%s(attempt=%d, delay=%s)", e.Kind, e.Attempt, e.Delay)
	default:
		return e.Kind.String()
	}
}
