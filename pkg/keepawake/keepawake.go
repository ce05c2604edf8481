// Package keepawake provides a best-effort way to keep the host from idling
// while audio plays.
//
// Every implementation may silently do nothing. Callers treat any error as
// non-fatal.
package keepawake

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned when the capability is not available.
var ErrUnsupported = errors.New("keep-awake unsupported")

// KeepAwake is requested when playback starts and released when it stops.
type KeepAwake interface {
	Request(ctx context.Context) error
	Release() error
}

// Notifier is implemented by a KeepAwake that can lose its hold on its own.
// The channel receives once for each hold that is released from outside.
type Notifier interface {
	Released() <-chan struct{}
}

// Noop is used where no keep-awake mechanism exists.
type Noop struct{}

func (Noop) Request(context.Context) error { return nil }
func (Noop) Release() error                { return nil }

// New returns the keep-awake implementation for cfg.
func New(cfg Config) (KeepAwake, error) {
	switch cfg.Mode {
	case ModeNone, "":
		return Noop{}, nil
	case ModeCommand:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("keep-awake mode %q requires a command", cfg.Mode)
		}
		return NewCommand(cfg.Command), nil
	default:
		return nil, fmt.Errorf("unknown keep-awake mode %q", cfg.Mode)
	}
}
