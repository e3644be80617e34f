package sink

import (
	"errors"
	"fmt"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

// Multi fans every call out to several sinks: typically a Console for humans
// next to a Stream or SQLite for the record. An error from any sink fails
// the call, but the remaining sinks still receive it.
type Multi struct {
	sinks []chronicle.Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...chronicle.Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Init initializes every sink. The first failure aborts.
func (m *Multi) Init(applicationID string, spawnViewer bool) error {
	for i, s := range m.sinks {
		if err := s.Init(applicationID, spawnViewer); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Persist forwards the persistence target to every sink, skipping those that
// report ErrPersistUnsupported. It fails only when a sink fails for another
// reason, or when no sink supports persistence at all.
func (m *Multi) Persist(path string) error {
	supported := false
	var errs []error
	for i, s := range m.sinks {
		err := s.Persist(path)
		switch {
		case err == nil:
			supported = true
		case errors.Is(err, ErrPersistUnsupported):
			// skip
		default:
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !supported {
		return ErrPersistUnsupported
	}
	return nil
}

// SetTime forwards the timeline update to every sink.
func (m *Multi) SetTime(timeline string, cell chronicle.TimeCell) {
	for _, s := range m.sinks {
		s.SetTime(timeline, cell)
	}
}

// Log forwards the record to every sink.
func (m *Multi) Log(path string, rec chronicle.Record) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Log(path, rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and reports any failures together.
func (m *Multi) Close() error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
