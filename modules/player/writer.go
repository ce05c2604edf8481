package player

import (
	"io"
	"sync"
)

// item is either audio data or a request to start a new recording.
type item struct {
	data   []byte
	rotate string
}

// ChannelWriter hands audio and rotation requests to a single consumer in
// the order they were made.
type ChannelWriter struct {
	sync.Mutex
	items  chan item
	closed bool
}

func NewChannelWriter() *ChannelWriter {
	return &ChannelWriter{
		items: make(chan item, 1024),
	}
}

// Write queues a copy of p; callers may reuse p once Write returns.
func (cw *ChannelWriter) Write(p []byte) (n int, err error) {
	cw.Lock()
	defer cw.Unlock()

	if cw.closed {
		return 0, io.ErrClosedPipe
	}

	b := make([]byte, len(p))
	copy(b, p)
	cw.items <- item{data: b}

	return len(p), nil
}

// rotate queues a switch to the recording at name.
func (cw *ChannelWriter) rotate(name string) error {
	cw.Lock()
	defer cw.Unlock()

	if cw.closed {
		return io.ErrClosedPipe
	}

	cw.items <- item{rotate: name}

	return nil
}

func (cw *ChannelWriter) Close() error {
	cw.Lock()
	defer cw.Unlock()

	if !cw.closed {
		close(cw.items)
		cw.closed = true
	}

	return nil
}
