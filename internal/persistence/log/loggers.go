package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"beltline.ai/internal/sim/world"
)

const (
	KindTicks = "ticks"
	KindAudit = "audit"

	hourLayout = "2006-01-02-15"
)

// SegmentName is the file name of the hourly segment of kind covering at.
func SegmentName(kind string, at time.Time) string {
	return fmt.Sprintf("%s-%s.jsonl.zst", kind, at.UTC().Format(hourLayout))
}

// segment is one open hourly file: records go through a buffer into a zstd
// frame appended to the file.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, file: f, zw: zw, buf: bufio.NewWriterSize(zw, 128*1024)}, nil
}

func (s *segment) writeLine(b []byte) error {
	if _, err := s.buf.Write(b); err != nil {
		return err
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return err
	}
	return s.buf.Flush()
}

func (s *segment) close() error {
	flushErr := s.buf.Flush()
	zErr := s.zw.Close()
	fErr := s.file.Close()
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// stream appends JSON records of one kind to hourly segments under dir.
type stream struct {
	dir   string
	kind  string
	clock func() time.Time

	mu  sync.Mutex
	cur *segment
}

func newStream(worldDir, kind string) *stream {
	return &stream{dir: filepath.Join(worldDir, kind), kind: kind, clock: time.Now}
}

func (s *stream) append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	hour := now.UTC().Format(hourLayout)
	if s.cur == nil || s.cur.hour != hour {
		if err := s.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(filepath.Join(s.dir, SegmentName(s.kind, now)), hour)
		if err != nil {
			return err
		}
		s.cur = seg
	}
	return s.cur.writeLine(b)
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *stream) closeLocked() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.close()
	s.cur = nil
	return err
}

// TickLogger writes one entry per tick under <worldDir>/ticks. Replay walks
// the log in file order, so ticks must be strictly increasing.
type TickLogger struct {
	*stream
	last    uint64
	written bool
}

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{stream: newStream(worldDir, KindTicks)}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error {
	if l.written && e.Tick <= l.last {
		return fmt.Errorf("tick %d logged after tick %d", e.Tick, l.last)
	}
	if err := l.append(e); err != nil {
		return err
	}
	l.last, l.written = e.Tick, true
	return nil
}

// AuditLogger writes grid edits and deliveries under <worldDir>/audit. A tick
// may have many entries but ticks never go backwards.
type AuditLogger struct {
	*stream
	last uint64
}

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{stream: newStream(worldDir, KindAudit)}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error {
	if e.Tick < l.last {
		return fmt.Errorf("audit entry for tick %d after tick %d", e.Tick, l.last)
	}
	if e.Action == "" {
		return fmt.Errorf("audit entry at tick %d has no action", e.Tick)
	}
	if err := l.append(e); err != nil {
		return err
	}
	l.last = e.Tick
	return nil
}
