package playback

// EventKind identifies what happened to the player.
type EventKind int

const (
	// User input.
	EventPlay EventKind = iota
	EventPause
	EventStop

	// Source lifecycle.
	EventStarted  // the play request was accepted by the source
	EventPlaying  // steady playback reached
	EventWaiting  // data starved, waiting for more
	EventStalled  // no data for too long
	EventError    // the source failed mid-stream
	EventEnded    // the source ended, which a live stream never should
	EventRejected // the play request itself failed

	// EventTimerFired is posted by the reconnect timer.
	EventTimerFired
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventStop:
		return "stop"
	case EventStarted:
		return "started"
	case EventPlaying:
		return "playing"
	case EventWaiting:
		return "waiting"
	case EventStalled:
		return "stalled"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	case EventRejected:
		return "rejected"
	case EventTimerFired:
		return "timer-fired"
	default:
		return "unknown"
	}
}

// Event is the input to Machine.Handle.
type Event struct {
	Kind EventKind

	// Token identifies the timer for EventTimerFired.
	Token uint64

	// Err carries the cause of a failure event, if any.
	Err error
}

func (k EventKind) failure() bool {
	switch k {
	case EventStalled, EventError, EventEnded, EventRejected:
		return true
	}
	return false
}
