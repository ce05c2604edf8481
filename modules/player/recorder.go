package player

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
)

// minWriteBufSize and maxWriteBufSize clamp the configured write buffer to avoid
// tiny writes (no benefit) or very large buffers (memory and latency).
const (
	minWriteBufSize = 32 * 1024       // 32 KiB
	maxWriteBufSize = 4 * 1024 * 1024 // 4 MiB

	// maxSyncSearch is how much is buffered looking for the first frame
	// sync before writing anyway.
	maxSyncSearch = 8192
)

// Recorder writes the played audio to one file per announced title.
type Recorder struct {
	dir          string
	writeBufSize int
	clock        clock.Clock
	logger       *slog.Logger

	cw *ChannelWriter
	wg sync.WaitGroup
}

func NewRecorder(dir string, writeBufSize int, clk clock.Clock, logger *slog.Logger) *Recorder {
	if writeBufSize < minWriteBufSize {
		writeBufSize = minWriteBufSize
	}
	if writeBufSize > maxWriteBufSize {
		writeBufSize = maxWriteBufSize
	}

	return &Recorder{
		dir:          dir,
		writeBufSize: writeBufSize,
		clock:        clk,
		logger:       logger.With("component", "recorder"),
		cw:           NewChannelWriter(),
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()
}

func (r *Recorder) Write(p []byte) (int, error) {
	return r.cw.Write(p)
}

// Rotate starts a new recording for title. It has the TitleFunc signature.
func (r *Recorder) Rotate(stream, title string) {
	r.logger.Info("now listening to", "title", title)
	if err := r.cw.rotate(r.pathFor(stream, title)); err != nil {
		r.logger.Debug("recorder closed, ignoring title", "title", title)
	}
}

// Close commits the current recording and waits for the writer to exit.
func (r *Recorder) Close() error {
	err := r.cw.Close()
	r.wg.Wait()
	return err
}

func (r *Recorder) pathFor(stream, title string) string {
	stream = sanitizeName(stream)
	if stream == "" {
		stream = "stream"
	}
	title = sanitizeName(title)
	if title == "" {
		title = "recording-" + r.clock.Now().Format("20060102-150405")
	}
	return filepath.Join(r.dir, stream, title+".mp3")
}

func (r *Recorder) run() {
	var (
		rec    *recording
		broken bool
	)

	for it := range r.cw.items {
		if it.rotate != "" {
			if rec != nil && rec.dest == it.rotate {
				continue
			}
			rec.close()
			rec = r.open(it.rotate)
			broken = rec == nil
			continue
		}

		if rec == nil && !broken {
			rec = r.open(r.pathFor("", ""))
			broken = rec == nil
		}
		if rec != nil {
			rec.write(it.data)
		}
	}

	rec.close()
}

func (r *Recorder) open(dest string) *recording {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		r.logger.Error("error creating stream directory", "err", err)
		return nil
	}

	f, err := os.CreateTemp(dir, "*.mp3.tmp")
	if err != nil {
		r.logger.Error("error creating temp file", "err", err)
		return nil
	}

	r.logger.Debug("starting new recording", "path", dest)

	return &recording{
		f:        f,
		dest:     dest,
		logger:   r.logger,
		size:     r.writeBufSize,
		pending:  make([]byte, 0, 4096),
		writeBuf: make([]byte, 0, r.writeBufSize),
	}
}

// recording is one temp file being written. It is committed to dest on
// close.
type recording struct {
	f      *os.File
	dest   string
	logger *slog.Logger
	size   int

	synced   bool
	pending  []byte // data held until the first frame sync is found
	writeBuf []byte // batch writes to reduce disk I/O
}

func (rec *recording) write(b []byte) {
	if !rec.synced {
		rec.pending = append(rec.pending, b...)
		pos := findMP3FrameSync(rec.pending)
		switch {
		case pos >= 0:
			b = rec.pending[pos:]
		case len(rec.pending) > maxSyncSearch:
			rec.logger.Warn("no MP3 frame sync found in first 8KB, writing anyway")
			b = rec.pending
		default:
			return
		}
		rec.synced = true
		rec.pending = nil
	}

	rec.writeBuf = append(rec.writeBuf, b...)
	if len(rec.writeBuf) >= rec.size {
		rec.flush()
	}
}

func (rec *recording) flush() {
	if len(rec.writeBuf) == 0 {
		return
	}
	if _, err := rec.f.Write(rec.writeBuf); err != nil {
		rec.logger.Error("error writing to file", "err", err)
	}
	rec.writeBuf = rec.writeBuf[:0]
}

func (rec *recording) close() {
	if rec == nil {
		return
	}

	if len(rec.pending) > 0 {
		rec.writeBuf = append(rec.writeBuf, rec.pending...)
		rec.pending = nil
	}
	rec.flush()

	if err := rec.f.Sync(); err != nil {
		rec.logger.Error("error syncing file", "err", err)
	}
	if err := rec.f.Close(); err != nil {
		rec.logger.Error("error closing file", "err", err)
	}

	commitTempFile(rec.logger, rec.f.Name(), rec.dest)
}

// commitTempFile renames tempPath to destPath only if dest doesn't exist or
// the temp file is larger (so a previous crash doesn't overwrite a good recording).
func commitTempFile(logger *slog.Logger, tempPath, destPath string) {
	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		logger.Error("error stating temp file", "err", err, "path", tempPath)
		_ = os.Remove(tempPath)
		return
	}

	destInfo, err := os.Stat(destPath)
	switch {
	case err != nil && !os.IsNotExist(err):
		logger.Error("error stating dest file", "err", err, "path", destPath)
		_ = os.Remove(tempPath)
		return
	case err == nil && tempInfo.Size() <= destInfo.Size():
		_ = os.Remove(tempPath)
		logger.Debug("discarded shorter recording", "path", destPath, "temp_size", tempInfo.Size(), "existing_size", destInfo.Size())
		return
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
		_ = os.Remove(tempPath)
		return
	}
	logger.Debug("saved recording", "path", destPath, "size", tempInfo.Size())
}

func sanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '-'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
