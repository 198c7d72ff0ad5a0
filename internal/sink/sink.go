// Package sink is the file/console log sink §1 calls out as an external
// collaborator: it accepts formatted Record values from the logger worker
// and the log ring's overflow/synchronous-emission paths and renders them
// to a file, a console, or both.
//
// Rotation and buffered file writes are grounded on the teacher's
// internal/ptyio wrapper: a smallnest/ringbuffer staging buffer drained to
// the underlying *os.File, the same "buffer then bulk-drain" idiom ptyio
// uses for its write loop. Formatting and leveling reuse
// sirupsen/logrus the way cmd/blim/logging.go configures it; console color
// uses fatih/color gated by golang.org/x/term's isatty check.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/term"

	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/record"
)

// Destination selects where formatted records are rendered, per the
// logger.log_destination configuration key.
type Destination uint8

const (
	File Destination = iota
	Console
	Both
)

// ParseDestination maps a configuration string to a Destination, defaulting
// to Console for an unrecognized value.
func ParseDestination(s string) Destination {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return File
	case "both":
		return Both
	default:
		return Console
	}
}

var severityToLevel = [...]logrus.Level{
	record.Trace:    logrus.TraceLevel,
	record.Debug:    logrus.DebugLevel,
	record.Info:     logrus.InfoLevel,
	record.Notice:   logrus.InfoLevel,
	record.Warn:     logrus.WarnLevel,
	record.Error:     logrus.ErrorLevel,
	record.Critical: logrus.ErrorLevel,
	record.Fatal:    logrus.FatalLevel,
}

// Config carries the subset of the logger.* configuration namespace (§6)
// that governs sink behavior.
type Config struct {
	Destination       Destination
	FilePath          string
	FileName          string
	FileSizeBytes     int64
	Granularity       clock.Granularity
	AnsiColours       bool
	PurgeLogsOnRestart bool
	// PerLabelFileNames implements "logger.<thread_label>.log_file_name":
	// overrides keyed by the exact dot-delimited label they were configured
	// under.
	PerLabelFileNames map[string]string
}

const defaultFileBufferSize = 64 * 1024

// Sink renders records to file and/or console destinations. LoggingMu is
// shared with logring.Ring: rotation and ordinary writes serialize against
// the ring's overflow purges (§5's sink file handle policy).
type Sink struct {
	cfg      Config
	LoggingMu *sync.Mutex

	console   *logrus.Logger
	useColor  bool

	filesMu sync.Mutex
	files   map[string]*fileDest
}

// New constructs a Sink. loggingMu must be the same mutex shared with the
// log ring's overflow policy.
func New(cfg Config, loggingMu *sync.Mutex) (*Sink, error) {
	if cfg.FileSizeBytes <= 0 {
		cfg.FileSizeBytes = 10 * 1024 * 1024
	}
	s := &Sink{
		cfg:       cfg,
		LoggingMu: loggingMu,
		files:     make(map[string]*fileDest),
	}

	if cfg.Destination == Console || cfg.Destination == Both {
		s.console = logrus.New()
		s.console.SetOutput(os.Stdout)
		s.console.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		// Severity filtering happens once, upstream, in logring.Ring.Log's
		// MinSeverity gate (§6); the console logger must not re-filter
		// against logrus's own default InfoLevel threshold.
		s.console.SetLevel(logrus.TraceLevel)
		s.useColor = cfg.AnsiColours && term.IsTerminal(int(os.Stdout.Fd()))
	}

	if cfg.Destination == File || cfg.Destination == Both {
		if cfg.PurgeLogsOnRestart {
			if err := s.purgeExistingLogs(); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// fileDest is one rotating file's open handle, write buffer, and byte
// counter since the last rotation.
type fileDest struct {
	mu       sync.Mutex
	basePath string // the configured, non-rotated path
	f        *os.File
	buf      *ringbuffer.RingBuffer
	written  int64
}

// EmitSync implements logring.SyncSink: it is called by the logger worker's
// normal drain loop, which never already holds LoggingMu, so it acquires
// the lock itself around the whole record.
func (s *Sink) EmitSync(r record.Record) {
	s.LoggingMu.Lock()
	defer s.LoggingMu.Unlock()
	s.emitLocked(r)
}

// EmitSyncLocked is the locked-by-caller counterpart of EmitSync, used by
// the ring's overflow policy (§4.C), which holds LoggingMu across its
// entire start-marker/purge/complete-marker block so the block stays
// atomic with respect to other emitters — calling EmitSync there would
// re-lock the same non-reentrant mutex and deadlock the producer.
func (s *Sink) EmitSyncLocked(r record.Record) {
	s.emitLocked(r)
}

func (s *Sink) emitLocked(r record.Record) {
	level := logrus.InfoLevel
	if int(r.Severity) < len(severityToLevel) {
		level = severityToLevel[r.Severity]
	}
	ts := r.Timestamp.Format(s.cfg.Granularity)

	if s.cfg.Destination == Console || s.cfg.Destination == Both {
		s.emitConsole(level, ts, r)
	}
	if s.cfg.Destination == File || s.cfg.Destination == Both {
		s.emitFile(ts, r)
	}
}

func severityTag(sev record.Severity) string {
	return strings.ToUpper(sev.String())
}

func (s *Sink) emitConsole(level logrus.Level, ts string, r record.Record) {
	tag := severityTag(r.Severity)
	if s.useColor {
		tag = colorFor(r.Severity).Sprint(tag)
	}
	line := fmt.Sprintf("%s [%s] %s: %s", ts, tag, r.Label(), r.Message())
	s.console.Log(level, line)
}

func colorFor(sev record.Severity) *color.Color {
	switch sev {
	case record.Trace, record.Debug:
		return color.New(color.FgHiBlack)
	case record.Info, record.Notice:
		return color.New(color.FgCyan)
	case record.Warn:
		return color.New(color.FgYellow)
	case record.Error, record.Critical, record.Fatal:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

func (s *Sink) emitFile(ts string, r record.Record) {
	path := s.resolvePath(r.Label())
	dest := s.destFor(path)

	dest.mu.Lock()
	defer dest.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s: %s\n", ts, severityTag(r.Severity), r.Label(), r.Message())
	dest.write([]byte(line), s.cfg.FileSizeBytes)
}

// resolvePath implements the longest-to-shortest dot-prefix override
// resolution from §6: "logger.<thread_label>.log_file_name: override per
// thread; if absent, parent labels (dot-delimited) are tried in order from
// longest to shortest before falling back to the main log."
func (s *Sink) resolvePath(label string) string {
	segments := strings.Split(label, ".")
	for i := len(segments); i >= 1; i-- {
		candidate := strings.Join(segments[:i], ".")
		if name, ok := s.cfg.PerLabelFileNames[candidate]; ok {
			return filepath.Join(s.cfg.FilePath, name)
		}
	}
	return filepath.Join(s.cfg.FilePath, s.cfg.FileName)
}

func (s *Sink) destFor(path string) *fileDest {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if d, ok := s.files[path]; ok {
		return d
	}
	d := &fileDest{basePath: path, buf: ringbuffer.New(defaultFileBufferSize)}
	s.files[path] = d
	return d
}

// write buffers p through the ring and drains to the open file, rotating
// first if the configured size threshold would be exceeded. Must be called
// with both d.mu and the Sink's LoggingMu held (EmitSync/EmitSyncLocked's
// job, not this method's).
func (d *fileDest) write(p []byte, maxSize int64) {
	if d.f == nil {
		if err := d.open(); err != nil {
			return
		}
	}
	if d.written+int64(len(p)) > maxSize {
		_ = d.rotate()
	}

	n, err := d.buf.Write(p)
	if err != nil && errors.Is(err, ringbuffer.ErrIsFull) {
		d.flush()
		n, _ = d.buf.Write(p[n:])
	}
	d.flush()
}

func (d *fileDest) open() error {
	if err := os.MkdirAll(filepath.Dir(d.basePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(d.basePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err == nil {
		d.written = info.Size()
	}
	d.f = f
	return nil
}

// flush drains everything currently buffered to the open file.
func (d *fileDest) flush() {
	if d.f == nil {
		return
	}
	tmp := make([]byte, d.buf.Length())
	for !d.buf.IsEmpty() {
		n, err := d.buf.TryRead(tmp)
		if n == 0 || (err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty)) {
			break
		}
		written, werr := d.f.Write(tmp[:n])
		d.written += int64(written)
		if werr != nil {
			break
		}
	}
}

// rotate implements §6's "<basename>.YYYYMMDD_HHMMSS<.ext>" naming:
// timestamp inserted before the last dot if any, else appended.
func (d *fileDest) rotate() error {
	d.flush()
	if d.f != nil {
		d.f.Close()
		d.f = nil
	}
	if _, err := os.Stat(d.basePath); err == nil {
		rotated := rotatedName(d.basePath, time.Now())
		if err := os.Rename(d.basePath, rotated); err != nil {
			return err
		}
	}
	d.written = 0
	return d.open()
}

func rotatedName(basePath string, ts time.Time) string {
	stamp := ts.Format("20060102_150405")
	ext := filepath.Ext(basePath)
	if ext == "" {
		return basePath + "." + stamp
	}
	trimmed := strings.TrimSuffix(basePath, ext)
	return trimmed + "." + stamp + ext
}

func (s *Sink) purgeExistingLogs() error {
	path := filepath.Join(s.cfg.FilePath, s.cfg.FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close flushes and closes every open file destination.
func (s *Sink) Close() error {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	var firstErr error
	for _, d := range s.files {
		d.mu.Lock()
		d.flush()
		if d.f != nil {
			if err := d.f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			d.f = nil
		}
		d.mu.Unlock()
	}
	return firstErr
}
