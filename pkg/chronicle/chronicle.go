// Package chronicle is a lightweight facade for structured logging of
// events, metrics, and data streams. A Logger composes hierarchical entity
// paths from a mutable prefix and forwards typed records to a Sink.
package chronicle

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
)

// StepTimeline is the sequence timeline implicitly advanced by LogScalar.
const StepTimeline = "step"

// Config holds logger configuration.
type Config struct {
	ApplicationID string // unique identifier for the application (required)
	EntityPrefix  string // prefix applied to all entity paths
	SpawnViewer   bool   // ask the sink to open an interactive viewer
	SavePath      string // if set, the sink also persists the stream here
	Sink          Sink   // destination for records (required)
}

// DefaultConfig returns the default logger configuration. The sink and
// application ID must still be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		SpawnViewer: true,
	}
}

// Logger forwards typed log records to a Sink, resolving every entity path
// against its current prefix. A Logger is bound to a single sequential
// control flow: the scoped-prefix discipline is only correct under strict
// nesting, so concurrent use requires external synchronization or one
// Logger per goroutine.
type Logger struct {
	applicationID string
	entityPrefix  string
	sink          Sink

	// timelines holds the sticky time coordinates consulted by every
	// subsequent logging call. Session-scoped, not call-scoped.
	timelines map[string]TimeCell
}

// New creates a Logger and initializes its sink. Initialization or
// persistence failures abort construction.
func New(cfg Config) (*Logger, error) {
	if cfg.ApplicationID == "" {
		return nil, errors.New("application id is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}

	if err := cfg.Sink.Init(cfg.ApplicationID, cfg.SpawnViewer); err != nil {
		return nil, fmt.Errorf("failed to initialize sink: %w", err)
	}

	if cfg.SavePath != "" {
		if err := cfg.Sink.Persist(cfg.SavePath); err != nil {
			return nil, fmt.Errorf("failed to open persistence target %q: %w", cfg.SavePath, err)
		}
	}

	return &Logger{
		applicationID: cfg.ApplicationID,
		entityPrefix:  joinPath(cfg.EntityPrefix),
		sink:          cfg.Sink,
		timelines:     make(map[string]TimeCell),
	}, nil
}

// joinPath joins path fragments into a well-formed entity path: non-empty
// segments separated by single slashes, no leading or trailing separator.
func joinPath(parts ...string) string {
	var segments []string
	for _, part := range parts {
		for _, seg := range strings.Split(part, "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return strings.Join(segments, "/")
}

// ApplicationID returns the application identifier the session was created with.
func (l *Logger) ApplicationID() string {
	return l.applicationID
}

// ResolvePath composes the effective entity path for a relative path. With an
// empty prefix the relative path is returned unchanged; otherwise the prefix
// and relative path are joined with a single separator and stray leading or
// trailing separators are stripped.
func (l *Logger) ResolvePath(relative string) string {
	if l.entityPrefix == "" {
		return relative
	}
	return joinPath(l.entityPrefix, relative)
}

// Info logs an informational message.
func (l *Logger) Info(message string) error {
	return l.logText(LevelInfo, "logs/info", message)
}

// Warning logs a warning message.
func (l *Logger) Warning(message string) error {
	return l.logText(LevelWarning, "logs/warning", message)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string) error {
	return l.logText(LevelDebug, "logs/debug", message)
}

// Error logs an error message.
func (l *Logger) Error(message string) error {
	return l.logText(LevelError, "logs/error", message)
}

// Critical logs a critical issue.
func (l *Logger) Critical(message string) error {
	return l.logText(LevelCritical, "logs/critical", message)
}

func (l *Logger) logText(level Level, path, message string) error {
	return l.forward(path, NewTextRecord(level, message))
}

// LogScalar logs a numerical value. An optional trailing step sets the
// "step" timeline's sequence coordinate before the record is forwarded; the
// coordinate stays in effect for all subsequent records until changed again.
// Monotonicity of steps is not enforced.
func (l *Logger) LogScalar(path string, value float64, step ...int64) error {
	if len(step) > 0 {
		l.SetTimeSequence(StepTimeline, step[len(step)-1])
	}
	return l.forward(path, NewScalarRecord(value))
}

// LogImage logs an image. No shape or color-model validation happens here; a
// malformed image surfaces as an encoding or sink error.
func (l *Logger) LogImage(path string, img image.Image) error {
	rec, err := NewImageRecord(img)
	if err != nil {
		return err
	}
	return l.forward(path, rec)
}

// LogDict logs a dictionary as a pretty-printed JSON document with media type
// text/markdown. Values that cannot be serialized degrade to their default
// textual form; the call never fails for serialization reasons.
func (l *Logger) LogDict(path string, dict map[string]any) error {
	return l.forward(path, NewDocumentRecord(renderDict(dict), "text/markdown"))
}

// SetTimeSequence sets the current coordinate of a sequence timeline.
func (l *Logger) SetTimeSequence(timeline string, step int64) {
	s := step
	cell := TimeCell{Timeline: timeline, Sequence: &s}
	l.timelines[timeline] = cell
	l.sink.SetTime(timeline, cell)
}

// SetTimeSeconds sets the current coordinate of a seconds-based timeline.
func (l *Logger) SetTimeSeconds(timeline string, seconds float64) {
	sec := seconds
	cell := TimeCell{Timeline: timeline, Seconds: &sec}
	l.timelines[timeline] = cell
	l.sink.SetTime(timeline, cell)
}

// Context temporarily appends a prefix to all entity paths and returns the
// function that restores the previous prefix. Defer it at the call site so
// restoration runs on every exit path, early returns and panics included:
//
//	defer logger.Context("training/epoch_5")()
//	logger.LogScalar("loss", 0.5) // logs to <prefix>/training/epoch_5/loss
//
// Scopes nest by concatenation; entering the same scope twice doubles the
// segment.
func (l *Logger) Context(pathPrefix string) func() {
	old := l.entityPrefix
	l.entityPrefix = joinPath(l.entityPrefix, pathPrefix)
	return func() {
		l.entityPrefix = old
	}
}

// Scoped runs fn with the prefix appended, restoring the previous prefix
// afterwards even when fn returns an error or panics.
func (l *Logger) Scoped(pathPrefix string, fn func() error) error {
	defer l.Context(pathPrefix)()
	return fn()
}

// Batch opens a batch scope and returns its close function. Currently a
// placeholder for future buffering of forwarded records; call sites keep
// working unchanged when batching lands.
func (l *Logger) Batch() func() {
	return func() {}
}

// Close releases the sink's resources. The Logger must not be used after
// Close.
func (l *Logger) Close() error {
	return l.sink.Close()
}

// forward stamps the record with the current timeline snapshot and hands it
// to the sink at the resolved path. Each call succeeds or fails
// independently.
func (l *Logger) forward(path string, rec Record) error {
	rec.Times = l.timeSnapshot()
	if err := l.sink.Log(l.ResolvePath(path), rec); err != nil {
		return fmt.Errorf("failed to forward %s record: %w", rec.Kind, err)
	}
	return nil
}

func (l *Logger) timeSnapshot() []TimeCell {
	if len(l.timelines) == 0 {
		return nil
	}
	cells := make([]TimeCell, 0, len(l.timelines))
	for _, cell := range l.timelines {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Timeline < cells[j].Timeline
	})
	return cells
}
