package chronicle

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/disintegration/imaging"
)

// Kind identifies the payload type carried by a Record.
type Kind string

const (
	KindText     Kind = "text"
	KindScalar   Kind = "scalar"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Level is the severity tag attached to text records.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARN"
	LevelDebug    Level = "DEBUG"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// TimeCell is the current coordinate of one named timeline. Exactly one of
// Sequence or Seconds is set, depending on whether the timeline is
// sequence-based or timestamp-based.
type TimeCell struct {
	Timeline string   `json:"timeline"`
	Sequence *int64   `json:"sequence,omitempty"`
	Seconds  *float64 `json:"seconds,omitempty"`
}

// ImagePayload holds a PNG-encoded copy of a logged image. The pixel data is
// detached from the caller's image at record construction, so sinks may keep
// the record beyond the logging call.
type ImagePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    []byte `json:"png"`
}

// Record is a single log entry forwarded to a Sink. Kind selects which of the
// payload fields is meaningful. Times is a snapshot of the session's timeline
// coordinates at the moment the record was logged, ordered by timeline name.
type Record struct {
	Kind      Kind          `json:"kind"`
	Level     Level         `json:"level,omitempty"`
	Text      string        `json:"text,omitempty"`
	Value     float64       `json:"value,omitempty"`
	MediaType string        `json:"media_type,omitempty"`
	Image     *ImagePayload `json:"image,omitempty"`
	Times     []TimeCell    `json:"times,omitempty"`
	LoggedAt  time.Time     `json:"logged_at"`
}

// Sink is the boundary to the logging backend that stores and renders
// records. Implementations live in pkg/sink; the Logger only composes paths
// and forwards typed records.
type Sink interface {
	// Init prepares the sink for a session. Called exactly once per Logger.
	Init(applicationID string, spawnViewer bool) error

	// Persist instructs the sink to additionally write the record stream to
	// the given location. Sinks without a persistence concept return
	// an error; see sink.ErrPersistUnsupported.
	Persist(path string) error

	// SetTime records the current coordinate of a named timeline.
	SetTime(timeline string, cell TimeCell)

	// Log forwards one record attached at the given entity path.
	Log(path string, rec Record) error

	// Close releases any resources held by the sink.
	Close() error
}

// NewTextRecord creates a text record with a severity level.
func NewTextRecord(level Level, message string) Record {
	return Record{
		Kind:     KindText,
		Level:    level,
		Text:     message,
		LoggedAt: time.Now(),
	}
}

// NewScalarRecord creates a scalar record.
func NewScalarRecord(value float64) Record {
	return Record{
		Kind:     KindScalar,
		Value:    value,
		LoggedAt: time.Now(),
	}
}

// NewDocumentRecord creates a document record with an explicit media type.
func NewDocumentRecord(content, mediaType string) Record {
	return Record{
		Kind:      KindDocument,
		Text:      content,
		MediaType: mediaType,
		LoggedAt:  time.Now(),
	}
}

// NewImageRecord creates an image record. The image is cloned to NRGBA and
// PNG-encoded immediately so the record does not alias the caller's buffer.
func NewImageRecord(img image.Image) (Record, error) {
	if img == nil {
		return Record{}, fmt.Errorf("image is nil")
	}

	clone := imaging.Clone(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, clone); err != nil {
		return Record{}, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := clone.Bounds()
	return Record{
		Kind: KindImage,
		Image: &ImagePayload{
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			PNG:    buf.Bytes(),
		},
		LoggedAt: time.Now(),
	}, nil
}
