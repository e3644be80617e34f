package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

// ConsoleConfig holds console sink configuration.
type ConsoleConfig struct {
	Level  string    // debug, info, warn, error (gates text records only)
	Pretty bool      // human-readable console format
	Out    io.Writer // defaults to os.Stdout
	File   string    // optional file tee for the rendered output
}

// Console renders records through zerolog. It is the human-readable stand-in
// for an interactive viewer: text records map to leveled log lines; scalars,
// images and documents map to structured events.
type Console struct {
	cfg    ConsoleConfig
	app    string
	logger zerolog.Logger
	file   *os.File
}

// NewConsole creates a console sink.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Console{cfg: cfg}
}

// Init builds the zerolog logger for the session.
func (c *Console) Init(applicationID string, spawnViewer bool) error {
	c.app = applicationID

	if c.cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(c.cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		c.file = file
	}

	level, err := zerolog.ParseLevel(c.cfg.Level)
	if err != nil || c.cfg.Level == "" {
		level = zerolog.DebugLevel
	}

	var console io.Writer = c.cfg.Out
	if c.cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        c.cfg.Out,
			TimeFormat: time.RFC3339,
		}
	}

	writer := console
	if c.file != nil {
		writer = io.MultiWriter(console, c.file)
	}

	c.logger = zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("app", applicationID).
		Logger()

	if spawnViewer {
		c.logger.Debug().Msg("console sink renders inline; no separate viewer window")
	}
	return nil
}

// Persist returns ErrPersistUnsupported: persistence of the record stream is
// the Stream sink's job, the console only renders. Use ConsoleConfig.File to
// tee the rendered output.
func (c *Console) Persist(path string) error {
	return ErrPersistUnsupported
}

// SetTime is a no-op: the console renders the timeline snapshot carried by
// each record instead of tracking coordinates itself.
func (c *Console) SetTime(timeline string, cell chronicle.TimeCell) {}

// Log renders one record.
func (c *Console) Log(path string, rec chronicle.Record) error {
	var event *zerolog.Event

	switch rec.Kind {
	case chronicle.KindText:
		event = c.logger.WithLevel(zerologLevel(rec.Level)).Str("text", rec.Text)
	case chronicle.KindScalar:
		event = c.logger.Info().Float64("value", rec.Value)
	case chronicle.KindImage:
		event = c.logger.Info()
		if rec.Image != nil {
			event = event.
				Int("width", rec.Image.Width).
				Int("height", rec.Image.Height).
				Int("png_bytes", len(rec.Image.PNG))
		}
	case chronicle.KindDocument:
		event = c.logger.Info().
			Str("media_type", rec.MediaType).
			Str("content", rec.Text)
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}

	for _, cell := range rec.Times {
		switch {
		case cell.Sequence != nil:
			event = event.Int64("t."+cell.Timeline, *cell.Sequence)
		case cell.Seconds != nil:
			event = event.Float64("t."+cell.Timeline, *cell.Seconds)
		}
	}

	event.Str("kind", string(rec.Kind)).Msg(path)
	return nil
}

// Close closes the tee file if one was opened.
func (c *Console) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

func zerologLevel(level chronicle.Level) zerolog.Level {
	switch level {
	case chronicle.LevelDebug:
		return zerolog.DebugLevel
	case chronicle.LevelInfo:
		return zerolog.InfoLevel
	case chronicle.LevelWarning:
		return zerolog.WarnLevel
	case chronicle.LevelError:
		return zerolog.ErrorLevel
	case chronicle.LevelCritical:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
