// Package deliver renders a streaming suggestion progressively into the
// conversation: an ephemeral message that is updated as deltas arrive and
// finalized with interactive controls. When ephemeral delivery is not
// available for the conversation, delivery falls back to a direct message.
package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikelarin/draftly/internal/platform"
)

const (
	// updateInterval throttles in-place updates so the platform is not
	// hammered once per delta.
	updateInterval = 700 * time.Millisecond
	typingSuffix   = " …"
)

// Poster is the platform surface the renderer needs.
type Poster interface {
	PostEphemeral(ctx context.Context, channelID, userID, text string) (platform.MessageRef, error)
	UpdateEphemeral(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error
	UpdateMessage(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error
	OpenDM(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channelID, threadTS, text string, controls []platform.Control) (platform.MessageRef, error)
}

// Target identifies where and for whom a suggestion is rendered.
type Target struct {
	ChannelID string
	UserID    string
	ThreadTS  string
}

// Renderer progressively renders one suggestion. A Renderer is single-use
// and not safe for concurrent use; the pipeline drives it from one
// goroutine.
type Renderer struct {
	poster Poster
	target Target

	ref        platform.MessageRef
	started    bool
	viaDM      bool
	lastUpdate time.Time
}

// NewRenderer creates a renderer for one suggestion delivery.
func NewRenderer(poster Poster, target Target) *Renderer {
	return &Renderer{poster: poster, target: target}
}

// Push renders the accumulated text so far. The first push posts the
// ephemeral message; later pushes update it in place, throttled to one
// platform call per updateInterval. Update failures are logged and
// swallowed: a stale intermediate frame is harmless because Finalize
// always writes the full text.
func (r *Renderer) Push(ctx context.Context, accumulated string) error {
	if !r.started {
		return r.start(ctx, accumulated)
	}

	if time.Since(r.lastUpdate) < updateInterval {
		return nil
	}

	if err := r.update(ctx, accumulated+typingSuffix, nil); err != nil {
		slog.Warn("progressive update failed, will retry on next delta", "channel", r.target.ChannelID, "error", err)
		return nil
	}
	r.lastUpdate = time.Now()
	return nil
}

// Finalize writes the complete text with interactive controls attached.
// Unlike intermediate pushes this is not throttled and its failure is
// surfaced: a suggestion the user cannot act on was not delivered.
func (r *Renderer) Finalize(ctx context.Context, text string, controls []platform.Control) error {
	if !r.started {
		if err := r.start(ctx, text); err != nil {
			return err
		}
	}
	if err := r.update(ctx, text, controls); err != nil {
		return fmt.Errorf("finalizing suggestion: %w", err)
	}
	return nil
}

// Abort replaces whatever was rendered with a short notice, used when
// generation fails or output is blocked mid-stream. Nothing rendered yet
// means nothing to clean up.
func (r *Renderer) Abort(ctx context.Context, notice string) {
	if !r.started {
		return
	}
	if err := r.update(ctx, notice, nil); err != nil {
		slog.Warn("abort notice delivery failed", "channel", r.target.ChannelID, "error", err)
	}
}

// ViaDM reports whether delivery fell back to a direct message.
func (r *Renderer) ViaDM() bool {
	return r.viaDM
}

// Ref returns the delivered message's reference, zero until the first
// frame was posted.
func (r *Renderer) Ref() platform.MessageRef {
	return r.ref
}

// start posts the first frame, falling back to a DM when the channel does
// not permit ephemeral messages. The DM fallback is attempted once.
func (r *Renderer) start(ctx context.Context, text string) error {
	ref, err := r.poster.PostEphemeral(ctx, r.target.ChannelID, r.target.UserID, text+typingSuffix)
	if err == nil {
		r.ref = ref
		r.started = true
		r.lastUpdate = time.Now()
		return nil
	}

	if !platform.IsChannelRestricted(err) {
		return fmt.Errorf("posting suggestion: %w", err)
	}

	slog.Info("ephemeral delivery unavailable, falling back to DM", "channel", r.target.ChannelID, "user", r.target.UserID)

	dmChannel, dmErr := r.poster.OpenDM(ctx, r.target.UserID)
	if dmErr != nil {
		return fmt.Errorf("opening DM fallback: %w", dmErr)
	}
	ref, dmErr = r.poster.PostMessage(ctx, dmChannel, "", text+typingSuffix, nil)
	if dmErr != nil {
		return fmt.Errorf("posting suggestion via DM: %w", dmErr)
	}

	r.ref = ref
	r.viaDM = true
	r.started = true
	r.lastUpdate = time.Now()
	return nil
}

func (r *Renderer) update(ctx context.Context, text string, controls []platform.Control) error {
	if r.viaDM {
		return r.poster.UpdateMessage(ctx, r.ref, text, controls)
	}
	return r.poster.UpdateEphemeral(ctx, r.ref, text, controls)
}
