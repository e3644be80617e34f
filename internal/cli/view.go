package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ibrandiay/chronicle/pkg/sink"
)

var viewFollow bool

var viewCmd = &cobra.Command{
	Use:   "view <recording>",
	Short: "Print a JSONL recording",
	Long: `View prints the header and records of a chronicle JSONL recording.
With --follow it keeps watching the file and prints records as an active
session appends them.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().BoolVarP(&viewFollow, "follow", "f", false, "keep watching the recording for new records")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	path := args[0]

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	tail := &tailer{reader: bufio.NewReaderSize(file, 64*1024)}
	if err := tail.drain(cmd.OutOrStdout()); err != nil {
		return err
	}

	if !viewFollow {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch recording: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != 0 {
				if err := tail.drain(cmd.OutOrStdout()); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-stop:
			return nil
		}
	}
}

// tailer reads a recording incrementally. A trailing partial line (the
// writer was mid-append) stays in pending until the next drain completes it.
type tailer struct {
	reader  *bufio.Reader
	pending []byte
}

// drain prints every complete line currently available.
func (t *tailer) drain(out io.Writer) error {
	for {
		chunk, err := t.reader.ReadBytes('\n')
		if len(chunk) > 0 {
			t.pending = append(t.pending, chunk...)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read recording: %w", err)
		}

		line := t.pending
		t.pending = nil
		printEnvelope(out, line)
	}
}

func printEnvelope(out io.Writer, line []byte) {
	var env sink.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		fmt.Fprintf(out, "?? %s", string(line))
		return
	}

	switch env.Type {
	case sink.EnvelopeHeader:
		if env.Header != nil {
			fmt.Fprintf(out, "session %s app=%s started=%s\n",
				env.Header.SessionID, env.Header.ApplicationID,
				env.Header.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	case sink.EnvelopeTime:
		if env.Time != nil {
			switch {
			case env.Time.Sequence != nil:
				fmt.Fprintf(out, "time %s=%d\n", env.Time.Timeline, *env.Time.Sequence)
			case env.Time.Seconds != nil:
				fmt.Fprintf(out, "time %s=%gs\n", env.Time.Timeline, *env.Time.Seconds)
			}
		}
	case sink.EnvelopeRecord:
		if env.Record == nil {
			return
		}
		rec := env.Record
		switch rec.Kind {
		case "text":
			fmt.Fprintf(out, "%-8s %s %s\n", rec.Level, env.Path, rec.Text)
		case "scalar":
			fmt.Fprintf(out, "scalar   %s %g\n", env.Path, rec.Value)
		case "image":
			if rec.Image != nil {
				fmt.Fprintf(out, "image    %s %dx%d (%d bytes png)\n",
					env.Path, rec.Image.Width, rec.Image.Height, len(rec.Image.PNG))
			}
		case "document":
			content := rec.Text
			if i := strings.IndexByte(content, '\n'); i >= 0 {
				content = content[:i] + " ..."
			}
			fmt.Fprintf(out, "document %s [%s] %s\n", env.Path, rec.MediaType, content)
		}
	}
}
