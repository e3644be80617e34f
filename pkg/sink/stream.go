package sink

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

// Header is the first line of every recording, identifying the session.
type Header struct {
	SessionID     string    `json:"session_id"`
	ApplicationID string    `json:"application_id"`
	StartedAt     time.Time `json:"started_at"`
}

// Envelope is one line of a JSONL recording. Type selects the payload:
// "header" opens a recording, "time" captures a timeline update, "record"
// carries a log record attached at Path.
type Envelope struct {
	Type   string              `json:"type"`
	Header *Header             `json:"header,omitempty"`
	Time   *chronicle.TimeCell `json:"time,omitempty"`
	Path   string              `json:"path,omitempty"`
	Record *chronicle.Record   `json:"record,omitempty"`
}

// Envelope types.
const (
	EnvelopeHeader = "header"
	EnvelopeTime   = "time"
	EnvelopeRecord = "record"
)

// StreamConfig holds stream sink configuration.
type StreamConfig struct {
	Path      string // recording path; may instead arrive later via Persist
	MaxSizeMB int    // max size before rotation, default 100
	MaxAge    int    // days rotated recordings are kept, default 7
	Compress  bool   // gzip rotated recordings
}

// DefaultStreamConfig returns the default stream sink configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxSizeMB: 100,
		MaxAge:    7,
	}
}

// Stream persists records as an append-only JSONL recording with size-based
// rotation. The first line is a session header; every timeline update and
// record follows as its own line, so a recording replays the session exactly.
type Stream struct {
	cfg StreamConfig

	mu            sync.Mutex
	writer        *RotatingWriter
	header        *Header
	headerWritten bool
}

// NewStream creates a stream sink. With an empty Path the recording target
// must be supplied through Persist before the first record is logged.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}

	s := &Stream{cfg: cfg}
	if cfg.Path != "" {
		if err := s.open(cfg.Path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Init stamps the session header. spawnViewer has no meaning for a file
// recording and is ignored.
func (s *Stream) Init(applicationID string, spawnViewer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.header = &Header{
		SessionID:     uuid.NewString(),
		ApplicationID: applicationID,
		StartedAt:     time.Now().UTC(),
	}
	return s.flushHeader()
}

// Persist opens (or replaces) the recording target.
func (s *Stream) Persist(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			return fmt.Errorf("failed to close previous recording: %w", err)
		}
		s.writer = nil
		s.headerWritten = false
	}

	if err := s.open(path); err != nil {
		return err
	}
	return s.flushHeader()
}

// SetTime appends a timeline update line.
func (s *Stream) SetTime(timeline string, cell chronicle.TimeCell) {
	// Timeline updates are advisory in the recording; a missing target is
	// reported on the next Log call instead.
	_ = s.append(Envelope{Type: EnvelopeTime, Time: &cell})
}

// Log appends one record line.
func (s *Stream) Log(path string, rec chronicle.Record) error {
	return s.append(Envelope{Type: EnvelopeRecord, Path: path, Record: &rec})
}

// Close closes the recording.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

func (s *Stream) open(path string) error {
	writer, err := NewRotatingWriter(path, s.cfg.MaxSizeMB, s.cfg.MaxAge, s.cfg.Compress)
	if err != nil {
		return fmt.Errorf("failed to open recording %q: %w", path, err)
	}
	s.writer = writer
	return nil
}

// flushHeader writes the header line once both the session identity and the
// writer exist. Init and Persist may run in either order.
func (s *Stream) flushHeader() error {
	if s.headerWritten || s.header == nil || s.writer == nil {
		return nil
	}
	if err := s.writeLine(Envelope{Type: EnvelopeHeader, Header: s.header}); err != nil {
		return err
	}
	s.headerWritten = true
	return nil
}

func (s *Stream) append(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return fmt.Errorf("no recording target configured")
	}
	return s.writeLine(env)
}

func (s *Stream) writeLine(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write recording line: %w", err)
	}
	return nil
}
