// Package convo assembles the recent conversation context for a trigger
// event: thread replies when the trigger lives in (or starts) a thread,
// channel history otherwise. Context is best-effort enrichment — fetch
// failures produce an empty transcript, never an error.
package convo

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/mikelarin/draftly/internal/platform"
)

const (
	defaultWindow      = 60 * time.Minute
	defaultMaxMessages = 20
)

// Message is one conversation message, normalized for prompt assembly.
// Ephemeral: produced per request and never persisted.
type Message struct {
	AuthorID  string
	Text      string
	Timestamp time.Time
	IsHuman   bool
}

// HistorySource is the slice of the platform API the assembler needs.
type HistorySource interface {
	History(ctx context.Context, channelID string, oldest time.Time, limit int) ([]platform.Message, error)
	Replies(ctx context.Context, channelID, threadTS string) ([]platform.Message, error)
}

// Request identifies where the trigger happened.
type Request struct {
	ChannelID string
	// ThreadTS is set when the trigger arrived inside an existing thread.
	ThreadTS string
	// TriggerTS is the timestamp of the message that triggered the run.
	TriggerTS string
}

// Assembler fetches and filters conversation context.
type Assembler struct {
	source HistorySource
	window time.Duration
	maxMsg int
}

// NewAssembler creates an Assembler. Non-positive window/maxMessages use
// the defaults (60 minutes, 20 messages).
func NewAssembler(source HistorySource, window time.Duration, maxMessages int) *Assembler {
	if window <= 0 {
		window = defaultWindow
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Assembler{source: source, window: window, maxMsg: maxMessages}
}

// Assemble returns the relevant conversation in chronological order.
//
// Mode selection: an explicit thread reference different from the trigger
// message means the trigger is a reply — fetch that thread. Otherwise probe
// whether the trigger message is itself a thread parent and use its replies
// if so. Otherwise fall back to channel-level history inside the time
// window. Non-human (bot) messages are always filtered out.
func (a *Assembler) Assemble(ctx context.Context, req Request) []Message {
	now := time.Now()

	if req.ThreadTS != "" && req.ThreadTS != req.TriggerTS {
		msgs, err := a.source.Replies(ctx, req.ChannelID, req.ThreadTS)
		if err != nil {
			slog.Warn("thread fetch failed, continuing without context", "channel", req.ChannelID, "thread_ts", req.ThreadTS, "error", err)
			return nil
		}
		return a.normalize(msgs)
	}

	// The trigger may itself be a thread parent: probe for replies and
	// switch to thread mode when it has any.
	if req.TriggerTS != "" {
		msgs, err := a.source.Replies(ctx, req.ChannelID, req.TriggerTS)
		if err == nil && len(msgs) > 1 {
			return a.normalize(msgs)
		}
		if err != nil {
			slog.Debug("thread probe failed, falling back to channel history", "channel", req.ChannelID, "error", err)
		}
	}

	oldest := now.Add(-a.window)
	msgs, err := a.source.History(ctx, req.ChannelID, oldest, a.maxMsg*2)
	if err != nil {
		slog.Warn("history fetch failed, continuing without context", "channel", req.ChannelID, "error", err)
		return nil
	}
	return a.filterWindow(a.normalize(msgs), oldest)
}

// normalize filters out bot messages, converts timestamps, sorts
// chronologically, and truncates to the newest maxMessages.
func (a *Assembler) normalize(msgs []platform.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsBot {
			continue
		}
		out = append(out, Message{
			AuthorID:  m.AuthorID,
			Text:      m.Text,
			Timestamp: parseTS(m.TS),
			IsHuman:   true,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if len(out) > a.maxMsg {
		out = out[len(out)-a.maxMsg:]
	}
	return out
}

func (a *Assembler) filterWindow(msgs []Message, oldest time.Time) []Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.Timestamp.Before(oldest) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// parseTS converts a platform "seconds.fraction" timestamp. A zero time is
// returned for malformed input so ordering degrades instead of failing.
func parseTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
