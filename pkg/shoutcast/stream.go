package shoutcast

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const userAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// StatusError is returned by Open when the server answers with a non-success
// status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request to %s failed with status %d", e.URL, e.StatusCode)
}

// Stream represents an open shoutcast stream.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// Content type announced by the server
	ContentType string

	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Amount of bytes to read before expecting a metadata block, zero when
	// the server sends none
	metaint int

	// Stream metadata
	metadata *Metadata

	// The number of bytes read since last metadata block
	pos int

	// The underlying data stream
	rc io.ReadCloser
}

// Client opens streams. The zero value is not usable; see NewClient.
type Client struct {
	http *http.Client
}

// NewClient returns a Client that bounds connection setup by dialTimeout and
// headerTimeout but never times out while the body is being read.
func NewClient(dialTimeout, headerTimeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: headerTimeout,
	}

	return &Client{http: &http.Client{Transport: transport}}
}

var defaultClient = NewClient(5*time.Second, 10*time.Second)

// Open establishes a connection to a remote server using the default client.
func Open(ctx context.Context, url string) (*Stream, error) {
	return defaultClient.Open(ctx, url)
}

// Open establishes a connection to a remote server. A playlist response
// (.pls, .m3u) is resolved to its first entry, which is then opened in its
// place. The stream stays open until ctx is cancelled or Close is called.
func (c *Client) Open(ctx context.Context, url string) (*Stream, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	if kind := detectPlaylist(url, resp.Header.Get("Content-Type")); kind != notPlaylist {
		streamURL, err := resolvePlaylist(kind, resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve playlist URL: %w", err)
		}

		resp, err = c.get(ctx, streamURL)
		if err != nil {
			return nil, err
		}
	}

	s, err := newStream(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	return s, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)
	req.Header.Add("icy-metadata", "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

func newStream(resp *http.Response) (*Stream, error) {
	var (
		bitrate int
		metaint int
		err     error
	)

	if raw := resp.Header.Get("icy-br"); raw != "" {
		bitrate, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse bitrate: %w", err)
		}
	}

	if raw := resp.Header.Get("icy-metaint"); raw != "" {
		metaint, err = strconv.Atoi(raw)
		if err != nil || metaint < 0 {
			return nil, fmt.Errorf("cannot parse metaint %q", raw)
		}
	}

	return &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resp.Header.Get("icy-url"),
		Bitrate:     bitrate,
		ContentType: resp.Header.Get("Content-Type"),
		metaint:     metaint,
		rc:          resp.Body,
	}, nil
}

// Read implements the standard Read interface. Only audio bytes are
// returned; metadata blocks are consumed and reported through
// MetadataCallbackFunc.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.metaint == 0 {
		return s.rc.Read(buf)
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	// Never read past the next metadata block.
	if remaining := s.metaint - s.pos; len(buf) > remaining {
		buf = buf[:remaining]
	}

	n, err := s.rc.Read(buf)
	s.pos += n

	return n, err
}

func (s *Stream) readMetadata() error {
	var size [1]byte
	if _, err := io.ReadFull(s.rc, size[:]); err != nil {
		return err
	}

	blockLen := int(size[0]) * 16
	if blockLen == 0 {
		return nil
	}

	block := make([]byte, blockLen)
	if _, err := io.ReadFull(s.rc, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if m := NewMetadata(block); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(m)
		}
	}

	return nil
}

// Metadata returns the last metadata block seen, or nil.
func (s *Stream) Metadata() *Metadata {
	return s.metadata
}

// Close closes the stream
func (s *Stream) Close() error {
	return s.rc.Close()
}
