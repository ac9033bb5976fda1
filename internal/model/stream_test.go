package model

import (
	"io"
	"strings"
	"testing"
)

func sseBody(events ...string) io.ReadCloser {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: " + e + "\n\n")
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for {
		delta, err := s.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, delta)
	}
}

func TestStream_Deltas(t *testing.T) {
	s := newStream(sseBody(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	))
	defer s.Close()

	got := collect(t, s)
	if strings.Join(got, "") != "Hello" {
		t.Errorf("deltas = %v, want Hel+lo", got)
	}
}

func TestStream_StopsAtDone(t *testing.T) {
	s := newStream(sseBody(
		`{"choices":[{"delta":{"content":"a"}}]}`,
		`[DONE]`,
		`{"choices":[{"delta":{"content":"never seen"}}]}`,
	))
	defer s.Close()

	got := collect(t, s)
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("deltas = %v, want just a", got)
	}

	// Further reads keep returning EOF.
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after DONE = %v, want io.EOF", err)
	}
}

func TestStream_SkipsMalformedAndEmptyEvents(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		": keep-alive comment\n" +
			"data: not json at all\n" +
			"data: {\"choices\":[]}\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
			"data: [DONE]\n",
	))
	s := newStream(body)
	defer s.Close()

	got := collect(t, s)
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("deltas = %v, want just ok", got)
	}
}

func TestStream_EOFWithoutTerminator(t *testing.T) {
	s := newStream(sseBody(`{"choices":[{"delta":{"content":"partial"}}]}`))
	defer s.Close()

	got := collect(t, s)
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("deltas = %v, want partial", got)
	}
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	cc := &closeCounter{Reader: strings.NewReader("")}
	s := newStream(cc)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
}
