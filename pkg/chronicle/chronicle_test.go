package chronicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures every forwarded call for inspection.
type recordingSink struct {
	initApp     string
	initSpawn   bool
	initErr     error
	persistPath string
	persistErr  error
	closed      bool

	times   map[string]TimeCell
	entries []loggedEntry

	// failKinds makes Log fail for the listed kinds only.
	failKinds map[Kind]error
}

type loggedEntry struct {
	path string
	rec  Record
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		times:     make(map[string]TimeCell),
		failKinds: make(map[Kind]error),
	}
}

func (s *recordingSink) Init(applicationID string, spawnViewer bool) error {
	s.initApp = applicationID
	s.initSpawn = spawnViewer
	return s.initErr
}

func (s *recordingSink) Persist(path string) error {
	s.persistPath = path
	return s.persistErr
}

func (s *recordingSink) SetTime(timeline string, cell TimeCell) {
	s.times[timeline] = cell
}

func (s *recordingSink) Log(path string, rec Record) error {
	if err := s.failKinds[rec.Kind]; err != nil {
		return err
	}
	s.entries = append(s.entries, loggedEntry{path: path, rec: rec})
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) lastEntry(t *testing.T) loggedEntry {
	t.Helper()
	require.NotEmpty(t, s.entries)
	return s.entries[len(s.entries)-1]
}

func newTestLogger(t *testing.T, prefix string) (*Logger, *recordingSink) {
	t.Helper()
	snk := newRecordingSink()
	cfg := DefaultConfig()
	cfg.ApplicationID = "test_app"
	cfg.EntityPrefix = prefix
	cfg.Sink = snk
	log, err := New(cfg)
	require.NoError(t, err)
	return log, snk
}

func TestNew(t *testing.T) {
	t.Run("requires application id", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sink = newRecordingSink()

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "application id")
	})

	t.Run("requires sink", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplicationID = "app"

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sink")
	})

	t.Run("initializes sink with app id and viewer flag", func(t *testing.T) {
		snk := newRecordingSink()
		cfg := DefaultConfig()
		cfg.ApplicationID = "my_app"
		cfg.Sink = snk

		log, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, "my_app", snk.initApp)
		assert.True(t, snk.initSpawn)
		assert.Equal(t, "my_app", log.ApplicationID())
		assert.Empty(t, snk.persistPath)
	})

	t.Run("forwards save path", func(t *testing.T) {
		snk := newRecordingSink()
		cfg := DefaultConfig()
		cfg.ApplicationID = "my_app"
		cfg.SavePath = "/tmp/run.jsonl"
		cfg.Sink = snk

		_, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/run.jsonl", snk.persistPath)
	})

	t.Run("init failure aborts construction", func(t *testing.T) {
		snk := newRecordingSink()
		snk.initErr = errors.New("backend unavailable")
		cfg := DefaultConfig()
		cfg.ApplicationID = "my_app"
		cfg.Sink = snk

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize sink")
	})

	t.Run("persist failure aborts construction", func(t *testing.T) {
		snk := newRecordingSink()
		snk.persistErr = errors.New("disk full")
		cfg := DefaultConfig()
		cfg.ApplicationID = "my_app"
		cfg.SavePath = "/nope/run.jsonl"
		cfg.Sink = snk

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "persistence target")
	})
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		relative string
		want     string
	}{
		{"empty prefix is identity", "", "metrics/loss", "metrics/loss"},
		{"prefix concatenates", "a/b", "c", "a/b/c"},
		{"stray separators are stripped", "a/b/", "/c", "a/b/c"},
		{"leading separator on prefix", "/exp", "loss", "exp/loss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, _ := newTestLogger(t, tt.prefix)
			assert.Equal(t, tt.want, log.ResolvePath(tt.relative))
		})
	}
}

func TestTextLevels(t *testing.T) {
	log, snk := newTestLogger(t, "")

	require.NoError(t, log.Info("i"))
	require.NoError(t, log.Warning("w"))
	require.NoError(t, log.Debug("d"))
	require.NoError(t, log.Error("e"))
	require.NoError(t, log.Critical("c"))

	require.Len(t, snk.entries, 5)
	assert.Equal(t, "logs/info", snk.entries[0].path)
	assert.Equal(t, LevelInfo, snk.entries[0].rec.Level)
	assert.Equal(t, "logs/warning", snk.entries[1].path)
	assert.Equal(t, LevelWarning, snk.entries[1].rec.Level)
	assert.Equal(t, "logs/debug", snk.entries[2].path)
	assert.Equal(t, "logs/error", snk.entries[3].path)
	assert.Equal(t, "logs/critical", snk.entries[4].path)
	assert.Equal(t, LevelCritical, snk.entries[4].rec.Level)
	assert.Equal(t, "c", snk.entries[4].rec.Text)
}

func TestTextLevelsUnderPrefix(t *testing.T) {
	log, snk := newTestLogger(t, "experiment_01")
	require.NoError(t, log.Info("hello"))
	assert.Equal(t, "experiment_01/logs/info", snk.lastEntry(t).path)
}

func TestContext(t *testing.T) {
	t.Run("restores on normal exit", func(t *testing.T) {
		log, _ := newTestLogger(t, "p")

		restore := log.Context("q")
		assert.Equal(t, "p/q/loss", log.ResolvePath("loss"))
		restore()
		assert.Equal(t, "p/loss", log.ResolvePath("loss"))
	})

	t.Run("restores after panic", func(t *testing.T) {
		log, _ := newTestLogger(t, "p")

		func() {
			defer func() {
				require.NotNil(t, recover())
			}()
			defer log.Context("q")()
			panic("boom")
		}()

		assert.Equal(t, "p/loss", log.ResolvePath("loss"))
	})

	t.Run("nested scopes compose and unwind in order", func(t *testing.T) {
		log, _ := newTestLogger(t, "root")

		restoreA := log.Context("a")
		restoreB := log.Context("b")
		assert.Equal(t, "root/a/b/x", log.ResolvePath("x"))

		restoreB()
		assert.Equal(t, "root/a/x", log.ResolvePath("x"))

		restoreA()
		assert.Equal(t, "root/x", log.ResolvePath("x"))
	})

	t.Run("re-entering the same scope doubles the segment", func(t *testing.T) {
		log, _ := newTestLogger(t, "")

		defer log.Context("q")()
		defer log.Context("q")()
		assert.Equal(t, "q/q/x", log.ResolvePath("x"))
	})
}

func TestScoped(t *testing.T) {
	t.Run("restores after error", func(t *testing.T) {
		log, _ := newTestLogger(t, "p")

		err := log.Scoped("q", func() error {
			assert.Equal(t, "p/q/x", log.ResolvePath("x"))
			return errors.New("body failed")
		})
		require.Error(t, err)
		assert.Equal(t, "p/x", log.ResolvePath("x"))
	})

	t.Run("propagates the body's result", func(t *testing.T) {
		log, _ := newTestLogger(t, "")
		require.NoError(t, log.Scoped("q", func() error { return nil }))
	})
}

func TestBatch(t *testing.T) {
	log, snk := newTestLogger(t, "p")

	done := log.Batch()
	require.NoError(t, log.Info("inside batch"))
	done()

	// Batch is a no-op scope: no state change, records flow through.
	assert.Equal(t, "p/logs/info", snk.lastEntry(t).path)
	assert.Equal(t, "p/x", log.ResolvePath("x"))
}

func TestLogScalar(t *testing.T) {
	t.Run("step coordinate is sticky across calls", func(t *testing.T) {
		log, snk := newTestLogger(t, "")

		require.NoError(t, log.LogScalar("m/loss", 0.5, 5))
		require.NoError(t, log.Info("between"))
		require.NoError(t, log.LogScalar("m/loss", 0.4))

		require.Len(t, snk.entries, 3)
		for _, entry := range snk.entries {
			require.Len(t, entry.rec.Times, 1)
			assert.Equal(t, StepTimeline, entry.rec.Times[0].Timeline)
			require.NotNil(t, entry.rec.Times[0].Sequence)
			assert.Equal(t, int64(5), *entry.rec.Times[0].Sequence)
		}

		cell, ok := snk.times[StepTimeline]
		require.True(t, ok)
		assert.Equal(t, int64(5), *cell.Sequence)
	})

	t.Run("without step no timeline is touched", func(t *testing.T) {
		log, snk := newTestLogger(t, "")
		require.NoError(t, log.LogScalar("m/loss", 1.25))

		entry := snk.lastEntry(t)
		assert.Equal(t, "m/loss", entry.path)
		assert.Equal(t, 1.25, entry.rec.Value)
		assert.Empty(t, entry.rec.Times)
		assert.Empty(t, snk.times)
	})

	t.Run("out of order steps are forwarded as given", func(t *testing.T) {
		log, snk := newTestLogger(t, "")
		require.NoError(t, log.LogScalar("m/loss", 1.0, 10))
		require.NoError(t, log.LogScalar("m/loss", 2.0, 3))

		assert.Equal(t, int64(3), *snk.entries[1].rec.Times[0].Sequence)
	})
}

func TestTimelines(t *testing.T) {
	t.Run("independent timelines stay active together", func(t *testing.T) {
		log, snk := newTestLogger(t, "")

		log.SetTimeSequence("epoch", 2)
		log.SetTimeSeconds("wall", 12.5)
		require.NoError(t, log.LogScalar("m/acc", 0.9))

		entry := snk.lastEntry(t)
		require.Len(t, entry.rec.Times, 2)
		// Snapshot is ordered by timeline name.
		assert.Equal(t, "epoch", entry.rec.Times[0].Timeline)
		assert.Equal(t, int64(2), *entry.rec.Times[0].Sequence)
		assert.Equal(t, "wall", entry.rec.Times[1].Timeline)
		assert.Equal(t, 12.5, *entry.rec.Times[1].Seconds)
	})

	t.Run("setting a timeline again replaces its coordinate", func(t *testing.T) {
		log, snk := newTestLogger(t, "")

		log.SetTimeSequence("epoch", 1)
		log.SetTimeSequence("epoch", 7)
		require.NoError(t, log.LogScalar("m/acc", 0.9))

		entry := snk.lastEntry(t)
		require.Len(t, entry.rec.Times, 1)
		assert.Equal(t, int64(7), *entry.rec.Times[0].Sequence)
	})
}

func TestLogDict(t *testing.T) {
	t.Run("pretty prints with two space indent", func(t *testing.T) {
		log, snk := newTestLogger(t, "")

		require.NoError(t, log.LogDict("experiment/config", map[string]any{
			"layers":  5,
			"dropout": 0.5,
		}))

		entry := snk.lastEntry(t)
		assert.Equal(t, KindDocument, entry.rec.Kind)
		assert.Equal(t, "text/markdown", entry.rec.MediaType)
		assert.Contains(t, entry.rec.Text, "  \"dropout\": 0.5")

		var parsed map[string]any
		require.NoError(t, json.Unmarshal([]byte(entry.rec.Text), &parsed))
		assert.Equal(t, float64(5), parsed["layers"])
	})

	t.Run("unserializable values never fail the call", func(t *testing.T) {
		log, snk := newTestLogger(t, "")

		require.NoError(t, log.LogDict("bad", map[string]any{
			"ch":     make(chan int),
			"fn":     func() {},
			"nested": map[string]any{"also": make(chan int), "ok": 1},
		}))

		entry := snk.lastEntry(t)
		assert.NotEmpty(t, entry.rec.Text)
		assert.Contains(t, entry.rec.Text, "\"ok\": 1")
	})
}

func TestLogImage(t *testing.T) {
	log, snk := newTestLogger(t, "")

	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})

	require.NoError(t, log.LogImage("cam/front", img))

	entry := snk.lastEntry(t)
	assert.Equal(t, KindImage, entry.rec.Kind)
	require.NotNil(t, entry.rec.Image)
	assert.Equal(t, 4, entry.rec.Image.Width)
	assert.Equal(t, 3, entry.rec.Image.Height)
	assert.NotEmpty(t, entry.rec.Image.PNG)
}

func TestIndependentCallOutcomes(t *testing.T) {
	log, snk := newTestLogger(t, "")

	snk.failKinds[KindImage] = errors.New("malformed image")

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	err := log.LogImage("cam", img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed image")

	// An unrelated scalar on the same session still succeeds.
	require.NoError(t, log.LogScalar("m/loss", 0.1))
	assert.Equal(t, "m/loss", snk.lastEntry(t).path)
}

func TestClose(t *testing.T) {
	log, snk := newTestLogger(t, "")
	require.NoError(t, log.Close())
	assert.True(t, snk.closed)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "a/b/c", joinPath("a/b", "c"))
	assert.Equal(t, "a/b/c", joinPath("a//b/", "//c"))
	assert.Equal(t, "c", joinPath("", "c"))
	assert.Equal(t, "", joinPath("", ""))
	assert.Equal(t, "a", joinPath("///a///"))
}

func ExampleLogger_Context() {
	snk := newRecordingSink()
	log, err := New(Config{
		ApplicationID: "example",
		EntityPrefix:  "experiment_01",
		SpawnViewer:   false,
		Sink:          snk,
	})
	if err != nil {
		panic(err)
	}

	func() {
		defer log.Context("training/epoch_5")()
		fmt.Println(log.ResolvePath("loss"))
	}()
	fmt.Println(log.ResolvePath("loss"))

	// Output:
	// experiment_01/training/epoch_5/loss
	// experiment_01/loss
}

func ExampleLogger_LogDict() {
	snk := newRecordingSink()
	log, _ := New(Config{ApplicationID: "example", Sink: snk})

	_ = log.LogDict("experiment/config", map[string]any{"layers": 5})
	entry := snk.entries[len(snk.entries)-1]
	fmt.Println(strings.Contains(entry.rec.Text, "\"layers\": 5"))

	// Output:
	// true
}
