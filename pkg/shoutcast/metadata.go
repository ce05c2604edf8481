package shoutcast

import (
	"bytes"
	"strings"
)

// Metadata is one ICY metadata block.
type Metadata struct {
	// Title of the track currently playing
	StreamTitle string

	// Optional URL announced alongside the title
	StreamURL string
}

// NewMetadata parses a raw ICY metadata block such as
// "StreamTitle='Artist - Title';StreamUrl='http://radio.example';" padded with NUL bytes.
func NewMetadata(b []byte) *Metadata {
	m := &Metadata{}

	raw := string(bytes.TrimRight(b, "\x00"))
	for _, field := range strings.Split(raw, "';") {
		key, value, ok := strings.Cut(field, "='")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "StreamTitle":
			m.StreamTitle = value
		case "StreamUrl":
			m.StreamURL = value
		}
	}

	return m
}

// Equals reports whether two metadata blocks carry the same values.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}
