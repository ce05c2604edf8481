package playback

import "errors"

var (
	// ErrUpstreamUnavailable means the upstream could not be reached or
	// answered with a non-success status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrStreamInterrupted means an established stream stalled, failed or
	// ended.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrPlaybackRejected means the attempt to start playback failed.
	ErrPlaybackRejected = errors.New("playback rejected")

	// ErrCapabilityUnavailable means an optional capability such as
	// keep-awake is not supported. It is never fatal.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)
