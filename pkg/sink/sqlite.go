package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

// SQLite stores records in a SQLite database, one row per record, with a
// sessions table tying rows to the application run that produced them.
// Useful when recordings need to be queried rather than replayed.
type SQLite struct {
	db *sql.DB

	mu        sync.Mutex
	sessionID string
}

// ScalarPoint is one sample of a scalar series, with the value of the step
// timeline at log time when one was set.
type ScalarPoint struct {
	Step  *int64  `json:"step,omitempty"`
	Value float64 `json:"value"`
}

// NewSQLite opens (creating if needed) the record database.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		spawn_viewer INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		level TEXT,
		text_content TEXT,
		value REAL,
		media_type TEXT,
		image_png BLOB,
		times TEXT,
		logged_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_path ON records(session_id, path);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(session_id, kind);

	CREATE TABLE IF NOT EXISTS timeline_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		timeline TEXT NOT NULL,
		sequence INTEGER,
		seconds REAL,
		set_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Init registers the session.
func (s *SQLite) Init(applicationID string, spawnViewer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = uuid.NewString()

	spawn := 0
	if spawnViewer {
		spawn = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, application_id, spawn_viewer, started_at) VALUES (?, ?, ?, ?)`,
		s.sessionID, applicationID, spawn, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Persist returns ErrPersistUnsupported: the database file is already the
// persistence target.
func (s *SQLite) Persist(path string) error {
	return ErrPersistUnsupported
}

// SetTime appends a timeline event row.
func (s *SQLite) SetTime(timeline string, cell chronicle.TimeCell) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.db.Exec(
		`INSERT INTO timeline_events (session_id, timeline, sequence, seconds, set_at) VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, timeline, cell.Sequence, cell.Seconds, time.Now().UTC(),
	)
}

// Log inserts one record row.
func (s *SQLite) Log(path string, rec chronicle.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		return fmt.Errorf("sink not initialized")
	}

	var times []byte
	if len(rec.Times) > 0 {
		var err error
		times, err = json.Marshal(rec.Times)
		if err != nil {
			return fmt.Errorf("failed to marshal timeline snapshot: %w", err)
		}
	}

	var imagePNG []byte
	if rec.Image != nil {
		imagePNG = rec.Image.PNG
	}

	_, err := s.db.Exec(
		`INSERT INTO records (session_id, path, kind, level, text_content, value, media_type, image_png, times, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, path, string(rec.Kind), string(rec.Level), rec.Text,
		rec.Value, rec.MediaType, imagePNG, string(times), rec.LoggedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ScalarSeries returns the scalar samples logged at path for the current
// session, in insertion order.
func (s *SQLite) ScalarSeries(path string) ([]ScalarPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT value, times FROM records WHERE session_id = ? AND path = ? AND kind = ? ORDER BY id`,
		s.sessionID, path, string(chronicle.KindScalar),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query scalar series: %w", err)
	}
	defer rows.Close()

	var points []ScalarPoint
	for rows.Next() {
		var point ScalarPoint
		var times sql.NullString
		if err := rows.Scan(&point.Value, &times); err != nil {
			return nil, fmt.Errorf("failed to scan scalar row: %w", err)
		}
		if times.Valid && times.String != "" {
			var cells []chronicle.TimeCell
			if err := json.Unmarshal([]byte(times.String), &cells); err == nil {
				for _, cell := range cells {
					if cell.Timeline == chronicle.StepTimeline && cell.Sequence != nil {
						point.Step = cell.Sequence
					}
				}
			}
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// CountRecords returns how many records of a kind the current session has
// stored.
func (s *SQLite) CountRecords(kind chronicle.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM records WHERE session_id = ? AND kind = ?`,
		s.sessionID, string(kind),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
