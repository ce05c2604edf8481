package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zachfi/radiorelay/pkg/playback"
)

const readBufferSize = 32 * 1024

type chunk struct {
	data []byte
	err  error
}

// runSession plays one source connection and translates what happens to it
// into playback events tagged with gen.
func (p *Player) runSession(ctx context.Context, gen uint64) {
	defer p.sessions.Done()

	post := func(kind playback.EventKind, err error) {
		select {
		case p.events <- event{Event: playback.Event{Kind: kind, Err: err}, gen: gen}:
		case <-ctx.Done():
		}
	}

	p.metrics.sessions.Inc()

	rc, err := p.source.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			post(playback.EventRejected, err)
		}
		return
	}
	defer rc.Close()

	buffering := p.clock.Timer(p.cfg.BufferingTimeout)
	defer buffering.Stop()
	stall := p.clock.Timer(p.cfg.StallTimeout)
	defer stall.Stop()

	chunks := make(chan chunk)
	go readChunks(ctx, rc, chunks)

	// The session counts as started once audio arrives, not when the
	// source answers. A source that ends before any data is a failure.
	var (
		written int64
		started bool
		waiting bool
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("session closed", "written", ByteCountIEC(written))
			return

		case c := <-chunks:
			if len(c.data) > 0 {
				n, werr := p.sink.Write(c.data)
				written += int64(n)
				if werr != nil {
					p.logger.Error("error writing audio", "err", werr)
				}

				resetTimer(buffering, p.cfg.BufferingTimeout)
				resetTimer(stall, p.cfg.StallTimeout)
				switch {
				case !started:
					started = true
					post(playback.EventStarted, nil)
				case waiting:
					waiting = false
					post(playback.EventPlaying, nil)
				}
			}

			if c.err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("stream interrupted", "err", c.err, "written", ByteCountIEC(written))
				if errors.Is(c.err, io.EOF) {
					post(playback.EventEnded, playback.ErrStreamInterrupted)
				} else {
					post(playback.EventError, fmt.Errorf("%w: %w", playback.ErrStreamInterrupted, c.err))
				}
				return
			}

		case <-buffering.C:
			if started && !waiting {
				waiting = true
				post(playback.EventWaiting, nil)
			}

		case <-stall.C:
			p.logger.Warn("stream stalled", "after", p.cfg.StallTimeout, "written", ByteCountIEC(written))
			post(playback.EventStalled, playback.ErrStreamInterrupted)
			return
		}
	}
}

func readChunks(ctx context.Context, r io.Reader, out chan<- chunk) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)

		c := chunk{err: err}
		if n > 0 {
			c.data = make([]byte, n)
			copy(c.data, buf[:n])
		}

		if n > 0 || err != nil {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			return
		}
	}
}

func resetTimer(t *clock.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
