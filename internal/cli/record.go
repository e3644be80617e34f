package cli

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/spf13/cobra"

	"github.com/ibrandiay/chronicle/internal/config"
	"github.com/ibrandiay/chronicle/internal/logger"
	"github.com/ibrandiay/chronicle/pkg/chronicle"
	"github.com/ibrandiay/chronicle/pkg/sink"
)

var (
	recordApp    string
	recordSave   string
	recordSQLite string
	recordViewer bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run a demonstration session and record it",
	Long: `Record starts a chronicle session against the configured sinks and
logs a demonstration workload: leveled text messages, a sine-wave scalar
series on the step timeline, a generated gradient image, a structured
configuration document, and a scoped path prefix.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordApp, "app", "", "application id (default from config)")
	recordCmd.Flags().StringVar(&recordSave, "save", "", "persist the session to this JSONL recording")
	recordCmd.Flags().StringVar(&recordSQLite, "sqlite", "", "additionally store records in this SQLite database")
	recordCmd.Flags().BoolVar(&recordViewer, "viewer", false, "start the live websocket broadcast")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if recordApp == "" {
		recordApp = cfg.ApplicationID
	}
	if recordSave == "" {
		recordSave = cfg.SavePath
	}

	diag, err := logger.New(logger.Config{
		Level:   logLevel,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
		File:    cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer diag.Close()

	sinks := []chronicle.Sink{
		sink.NewConsole(sink.ConsoleConfig{Level: logLevel, Pretty: cfg.Logging.Pretty}),
	}

	if recordSave != "" {
		stream, err := sink.NewStream(sink.StreamConfig{
			MaxSizeMB: cfg.Recording.MaxSizeMB,
			MaxAge:    cfg.Recording.MaxAge,
			Compress:  cfg.Recording.Compress,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, stream)
	}

	if recordSQLite != "" {
		store, err := sink.NewSQLite(recordSQLite)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	if recordViewer {
		sinks = append(sinks, sink.NewLive(sink.LiveConfig{
			Addr:   cfg.Viewer.Addr,
			Logger: diag.GetZerolog(),
		}))
	}

	log, err := chronicle.New(chronicle.Config{
		ApplicationID: recordApp,
		SpawnViewer:   recordViewer,
		SavePath:      recordSave,
		Sink:          sink.NewInstrumented(sink.NewMulti(sinks...)),
	})
	if err != nil {
		return err
	}
	defer log.Close()

	return runDemoWorkload(log)
}

// runDemoWorkload exercises every record type the facade supports.
func runDemoWorkload(log *chronicle.Logger) error {
	if err := log.Info("Starting demonstration session"); err != nil {
		return err
	}
	_ = log.Warning("This is a sample warning")
	_ = log.Debug("Debug message")

	// Sine-wave scalar series on the step timeline.
	for i := 0; i < 50; i++ {
		if err := log.LogScalar("math/sine_wave", math.Sin(float64(i)/5.0), int64(i)); err != nil {
			return err
		}
	}

	if err := log.LogImage("generated/gradient", gradientImage(100, 100)); err != nil {
		return err
	}

	if err := log.LogDict("experiment/config", map[string]any{
		"model_type": "CNN",
		"layers":     5,
		"dropout":    0.5,
		"optimizer":  "Adam",
	}); err != nil {
		return err
	}

	return log.Scoped("validation_phase", func() error {
		if err := log.LogScalar("metrics/accuracy", 0.88, 1); err != nil {
			return err
		}
		return log.Info("Validation started")
	})
}

// gradientImage builds a simple RGB gradient test image.
func gradientImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}
