// Package playback implements the reconnect and backoff state machine of a
// single-station radio player.
//
// The Machine holds no I/O. Callers post an Event to Handle and execute the
// returned Effects against their own audio source, timer and keep-awake
// capability. This keeps every transition testable without a real stream.
package playback
