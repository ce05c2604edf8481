package player

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zachfi/radiorelay/pkg/playback"
	"github.com/zachfi/radiorelay/pkg/shoutcast"
)

// Source opens the audio stream for one playback session.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TitleFunc is called when the stream announces a new title.
type TitleFunc func(stream, title string)

type streamSource struct {
	client  *shoutcast.Client
	url     string
	onTitle TitleFunc
}

// NewStreamSource returns a Source reading url through the shoutcast client.
func NewStreamSource(client *shoutcast.Client, url string, onTitle TitleFunc) Source {
	return &streamSource{client: client, url: url, onTitle: onTitle}
}

func (s *streamSource) Open(ctx context.Context) (io.ReadCloser, error) {
	stream, err := s.client.Open(ctx, s.url)
	if err != nil {
		var statusErr *shoutcast.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %w", playback.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", playback.ErrPlaybackRejected, err)
	}

	if s.onTitle != nil {
		stream.MetadataCallbackFunc = func(m *shoutcast.Metadata) {
			s.onTitle(stream.Name, m.StreamTitle)
		}
	}

	return stream, nil
}
