package deliver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikelarin/draftly/internal/platform"
	"github.com/mikelarin/draftly/internal/quota"
)

// Notice texts shown in place of a suggestion.
const (
	safetyNotice  = "The drafted reply was withheld because it tripped a content policy check."
	failureNotice = "Couldn't draft a reply this time. Try again in a moment."
)

// Controls builds the interactive buttons attached to a finalized
// suggestion. The suggestion id is the correlation key: interaction
// callbacks carry it back so the handler can recover the full context.
func Controls(suggestionID string) []platform.Control {
	return []platform.Control{
		{Action: "send", Label: "Send", Value: suggestionID},
		{Action: "refine", Label: "Refine", Value: suggestionID},
		{Action: "dismiss", Label: "Dismiss", Value: suggestionID},
	}
}

// QuotaNotice renders the quota state for the user: a denial message when
// the decision blocked generation, a usage warning when the advisory level
// asks for one. Notices are best-effort; failures are logged only.
func QuotaNotice(ctx context.Context, poster Poster, target Target, d quota.Decision) {
	text := quotaText(d)
	if text == "" {
		return
	}
	if _, err := poster.PostEphemeral(ctx, target.ChannelID, target.UserID, text); err != nil {
		slog.Warn("quota notice delivery failed", "channel", target.ChannelID, "error", err)
	}
}

func quotaText(d quota.Decision) string {
	switch {
	case !d.Allowed:
		return fmt.Sprintf("You've used all %d included suggestions for this billing period. The counter resets next month.", d.Limit)
	case d.Level == quota.LevelCritical:
		return fmt.Sprintf("Heads up: %d of %d suggestions used this period.", d.Used, d.Limit)
	default:
		return ""
	}
}

// SafetyNotice tells the user their suggestion was withheld by a policy
// check, via the renderer when one is mid-flight, or as a fresh ephemeral
// when the block happened before the first frame.
func SafetyNotice(ctx context.Context, poster Poster, target Target, r *Renderer) {
	if r != nil && r.started {
		r.Abort(ctx, safetyNotice)
		return
	}
	if _, err := poster.PostEphemeral(ctx, target.ChannelID, target.UserID, safetyNotice); err != nil {
		slog.Warn("safety notice delivery failed", "channel", target.ChannelID, "error", err)
	}
}

// FailureNotice tells the user generation failed, via the renderer when one
// is mid-flight, or as a fresh ephemeral otherwise.
func FailureNotice(ctx context.Context, poster Poster, target Target, r *Renderer) {
	if r != nil && r.started {
		r.Abort(ctx, failureNotice)
		return
	}
	if _, err := poster.PostEphemeral(ctx, target.ChannelID, target.UserID, failureNotice); err != nil {
		slog.Warn("failure notice delivery failed", "channel", target.ChannelID, "error", err)
	}
}
