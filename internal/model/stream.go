package model

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Stream yields text deltas from an SSE chat completion response. It is
// consumed by exactly one reader and must be closed when abandoned so the
// underlying connection is released.
type Stream struct {
	rc     io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func newStream(rc io.ReadCloser) *Stream {
	return &Stream{
		rc:     rc,
		reader: bufio.NewReader(rc),
	}
}

// Next returns the next non-empty text delta. It returns io.EOF after the
// terminator event (or the end of the response body).
func (s *Stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Skip malformed keep-alive or comment events.
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}
		if delta := event.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
		if event.Choices[0].FinishReason != nil {
			s.done = true
			return "", io.EOF
		}
	}
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.done = true
	return s.rc.Close()
}
