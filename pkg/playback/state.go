package playback

import "fmt"

// Status is the externally visible playback state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusBuffering
	StatusReconnecting
	StatusError
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusBuffering:
		return "buffering"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets the status render as its name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Statuses lists every status, in declaration order.
func Statuses() []Status {
	return []Status{
		StatusIdle,
		StatusLoading,
		StatusPlaying,
		StatusPaused,
		StatusBuffering,
		StatusReconnecting,
		StatusError,
		StatusStopped,
	}
}

// State is a snapshot of the playback state owned by a Machine.
type State struct {
	Status            Status
	IsPlaying         bool
	ReconnectAttempts int

	// MaxReconnectAttempts is the configured attempt cap.
	MaxReconnectAttempts int

	// ReconnectPending is true while a reconnect timer is armed.
	ReconnectPending bool
}

// Attempt returns the reconnect attempt being waited on or in progress, for
// display. It is zero outside of reconnecting.
func (s State) Attempt() int {
	if s.Status != StatusReconnecting {
		return 0
	}
	if s.ReconnectPending {
		return s.ReconnectAttempts + 1
	}
	return s.ReconnectAttempts
}

// Message renders the state the way the player UI shows it.
func (s State) Message() string {
	switch s.Status {
	case StatusIdle:
		return "Ready to play"
	case StatusLoading:
		return "Loading..."
	case StatusPlaying:
		return "Now playing"
	case StatusPaused:
		return "Paused"
	case StatusBuffering:
		return "Buffering..."
	case StatusReconnecting:
		return fmt.Sprintf("Reconnecting... (%d/%d)", s.Attempt(), s.MaxReconnectAttempts)
	case StatusError:
		return "Connection error"
	case StatusStopped:
		return "Stopped"
	default:
		return ""
	}
}

// UnmarshalText parses a status name as produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range Statuses() {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback status %q", b)
}
