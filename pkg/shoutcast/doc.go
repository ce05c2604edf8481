// Package shoutcast opens HTTP audio streams for playback.
//
// It is a fork of github.com/romantomjak/shoutcast, extended for the radio
// player:
//   - Playlist resolution: .pls and .m3u responses are resolved to the actual stream URL
//   - ICY metadata is optional: without icy-metaint the body passes through unchanged
//   - Correct metadata stripping: ICY metadata blocks are read and skipped so only audio bytes are returned
//   - Connections are bound to a context and have no overall client timeout
package shoutcast
