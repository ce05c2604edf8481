package shoutcast

import (
	"fmt"
	"io"
	"strings"
)

// maxPlaylistSize bounds how much of a response is read while looking for a
// playlist, so a mislabelled live stream cannot be read forever.
const maxPlaylistSize = 64 * 1024

// parsePLS parses a PLS playlist file and returns the first stream URL
func parsePLS(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "File") {
			continue
		}
		if _, url, ok := strings.Cut(line, "="); ok {
			if url = strings.TrimSpace(url); url != "" {
				return url, nil
			}
		}
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U parses an M3U playlist file and returns the first stream URL
func parseM3U(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}

type playlistKind int

const (
	notPlaylist playlistKind = iota
	playlistPLS
	playlistM3U
)

// detectPlaylist decides from the request URL and the response content type
// whether a response is a playlist rather than audio.
func detectPlaylist(url, contentType string) playlistKind {
	contentType = strings.ToLower(contentType)
	url = strings.ToLower(url)

	switch {
	case strings.Contains(contentType, "audio/x-scpls"),
		strings.Contains(contentType, "application/pls+xml"),
		strings.HasSuffix(url, ".pls"):
		return playlistPLS
	case strings.Contains(contentType, "mpegurl"),
		strings.HasSuffix(url, ".m3u"),
		strings.HasSuffix(url, ".m3u8"):
		return playlistM3U
	}

	return notPlaylist
}

// resolvePlaylist reads a playlist body and returns the first stream URL.
func resolvePlaylist(kind playlistKind, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}
	content := string(data)

	switch kind {
	case playlistPLS:
		url, err := parsePLS(content)
		if err != nil {
			return "", fmt.Errorf("failed to parse PLS playlist: %w", err)
		}
		return url, nil
	default:
		url, err := parseM3U(content)
		if err != nil {
			return "", fmt.Errorf("failed to parse M3U playlist: %w", err)
		}
		return url, nil
	}
}
