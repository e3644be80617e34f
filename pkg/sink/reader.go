package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Image records embed base64 PNG data, so recording lines can get large.
const maxRecordingLine = 64 * 1024 * 1024

// ReadRecording reads a JSONL recording and returns its header and the
// remaining envelopes in order. Blank lines are skipped; a malformed line is
// an error (recordings are written atomically line by line, so a truncated
// tail means the file is damaged, not in progress).
func ReadRecording(path string) (*Header, []Envelope, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	return ReadEnvelopes(file)
}

// ReadEnvelopes reads envelopes from r. The header line is optional (a
// rotated continuation file starts mid-stream).
func ReadEnvelopes(r io.Reader) (*Header, []Envelope, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordingLine)

	var header *Header
	var envelopes []Envelope

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return header, envelopes, fmt.Errorf("failed to parse recording line %d: %w", line, err)
		}

		if env.Type == EnvelopeHeader && env.Header != nil {
			header = env.Header
			continue
		}
		envelopes = append(envelopes, env)
	}

	if err := scanner.Err(); err != nil {
		return header, envelopes, fmt.Errorf("failed to read recording: %w", err)
	}
	return header, envelopes, nil
}
