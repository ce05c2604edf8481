package shoutcast

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// icyBody interleaves audio chunks of metaint bytes with metadata blocks.
func icyBody(metaint int, audio []byte, titles []string) []byte {
	var out bytes.Buffer
	for i := 0; len(audio) > 0; i++ {
		n := metaint
		if n > len(audio) {
			n = len(audio)
		}
		out.Write(audio[:n])
		audio = audio[n:]
		if n < metaint {
			break
		}

		if i >= len(titles) {
			out.WriteByte(0)
			continue
		}
		block := []byte("StreamTitle='" + titles[i] + "';")
		size := (len(block) + 15) / 16
		out.WriteByte(byte(size))
		out.Write(block)
		out.Write(make([]byte, size*16-len(block)))
	}
	return out.Bytes()
}

func TestReadStripsMetadata(t *testing.T) {
	audio := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64)
	body := icyBody(32, audio, []string{"First - Song", "First - Song", "Second - Song"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.Header.Get("icy-metadata"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "32")
		w.Header().Set("icy-name", "Test FM")
		w.Header().Set("icy-br", "128")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, "Test FM", s.Name)
	require.Equal(t, 128, s.Bitrate)

	var titles []string
	s.MetadataCallbackFunc = func(m *Metadata) {
		titles = append(titles, m.StreamTitle)
	}

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, audio, got)
	require.Equal(t, []string{"First - Song", "Second - Song"}, titles)
	require.Equal(t, "Second - Song", s.Metadata().StreamTitle)
}

func TestReadPassthroughWithoutMetaint(t *testing.T) {
	audio := []byte("raw audio bytes that must not be touched")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, audio, got)
	require.Nil(t, s.Metadata())
}

func TestOpenStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestOpenResolvesPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/listen.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		_, _ = io.WriteString(w, "[playlist]\nNumberOfEntries=1\nFile1="+srv.URL+"/stream\nTitle1=Test\n")
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "audio")
	})

	s, err := Open(context.Background(), srv.URL+"/listen.pls")
	require.NoError(t, err)
	defer s.Close()

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "audio", string(got))
}

func TestParsePlaylists(t *testing.T) {
	url, err := parseM3U("#EXTM3U\n#EXTINF:-1,Test\n\nhttps://example.com/stream\n")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/stream", url)

	_, err = parseM3U("#EXTM3U\n")
	require.Error(t, err)

	url, err = parsePLS("[playlist]\nFile1 = http://example.com/a\nFile2=http://example.com/b\n")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/a", url)

	_, err = parsePLS("[playlist]\nNumberOfEntries=0\n")
	require.Error(t, err)
}

func TestDetectPlaylist(t *testing.T) {
	require.Equal(t, playlistPLS, detectPlaylist("http://x/listen.pls", ""))
	require.Equal(t, playlistM3U, detectPlaylist("http://x/live", "audio/x-mpegurl"))
	require.Equal(t, playlistM3U, detectPlaylist("http://x/live.M3U8", ""))
	require.Equal(t, notPlaylist, detectPlaylist("http://x/api/radio", "audio/mpeg"))
}

func TestNewMetadata(t *testing.T) {
	raw := append([]byte("StreamTitle='Artist - It''s Title';StreamUrl='http://x';"), 0, 0, 0)
	m := NewMetadata(raw)
	require.Equal(t, "http://x", m.StreamURL)
	require.Equal(t, "Artist - It''s Title", m.StreamTitle)

	require.True(t, m.Equals(&Metadata{StreamTitle: m.StreamTitle, StreamURL: m.StreamURL}))
	require.False(t, m.Equals(nil))
	require.True(t, (*Metadata)(nil).Equals(nil))
}
