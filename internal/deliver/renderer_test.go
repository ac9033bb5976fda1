package deliver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikelarin/draftly/internal/platform"
	"github.com/mikelarin/draftly/internal/quota"
)

type mockPoster struct {
	postEphemeralFn   func(ctx context.Context, channelID, userID, text string) (platform.MessageRef, error)
	updateEphemeralFn func(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error
	updateMessageFn   func(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error
	openDMFn          func(ctx context.Context, userID string) (string, error)
	postMessageFn     func(ctx context.Context, channelID, threadTS, text string, controls []platform.Control) (platform.MessageRef, error)
}

func (m *mockPoster) PostEphemeral(ctx context.Context, channelID, userID, text string) (platform.MessageRef, error) {
	return m.postEphemeralFn(ctx, channelID, userID, text)
}

func (m *mockPoster) UpdateEphemeral(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error {
	return m.updateEphemeralFn(ctx, ref, text, controls)
}

func (m *mockPoster) UpdateMessage(ctx context.Context, ref platform.MessageRef, text string, controls []platform.Control) error {
	return m.updateMessageFn(ctx, ref, text, controls)
}

func (m *mockPoster) OpenDM(ctx context.Context, userID string) (string, error) {
	return m.openDMFn(ctx, userID)
}

func (m *mockPoster) PostMessage(ctx context.Context, channelID, threadTS, text string, controls []platform.Control) (platform.MessageRef, error) {
	return m.postMessageFn(ctx, channelID, threadTS, text, controls)
}

var target = Target{ChannelID: "C1", UserID: "U1", ThreadTS: "10.5"}

func TestRenderer_FirstPushPostsEphemeral(t *testing.T) {
	var posted string
	poster := &mockPoster{
		postEphemeralFn: func(_ context.Context, channelID, userID, text string) (platform.MessageRef, error) {
			if channelID != "C1" || userID != "U1" {
				t.Errorf("posted to %s/%s", channelID, userID)
			}
			posted = text
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "Hel"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if posted != "Hel"+typingSuffix {
		t.Errorf("posted = %q, want typing suffix appended", posted)
	}
	if r.ViaDM() {
		t.Error("ViaDM = true for a plain ephemeral delivery")
	}
}

func TestRenderer_PushesAreThrottled(t *testing.T) {
	updates := 0
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
		updateEphemeralFn: func(context.Context, platform.MessageRef, string, []platform.Control) error {
			updates++
			return nil
		},
	}

	r := NewRenderer(poster, target)
	for _, acc := range []string{"a", "ab", "abc", "abcd"} {
		if err := r.Push(context.Background(), acc); err != nil {
			t.Fatalf("Push(%q): %v", acc, err)
		}
	}
	// All follow-up pushes land inside the throttle window right after start.
	if updates != 0 {
		t.Errorf("updates = %d, want 0 within the throttle window", updates)
	}
}

func TestRenderer_FinalizeBypassesThrottle(t *testing.T) {
	var finalText string
	var finalControls []platform.Control
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
		updateEphemeralFn: func(_ context.Context, ref platform.MessageRef, text string, controls []platform.Control) error {
			if ref.TS != "1.2" {
				t.Errorf("update ref = %+v", ref)
			}
			finalText = text
			finalControls = controls
			return nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "partial"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	controls := Controls("sg1")
	if err := r.Finalize(context.Background(), "the full reply", controls); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if finalText != "the full reply" {
		t.Errorf("final text = %q (typing suffix must be gone)", finalText)
	}
	if len(finalControls) != 3 || finalControls[0].Value != "sg1" {
		t.Errorf("controls = %+v", finalControls)
	}
}

func TestRenderer_FinalizeWithoutPushStartsFirst(t *testing.T) {
	started := false
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			started = true
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
		updateEphemeralFn: func(context.Context, platform.MessageRef, string, []platform.Control) error {
			return nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Finalize(context.Background(), "whole thing at once", nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !started {
		t.Error("Finalize on an unstarted renderer must post first")
	}
}

func TestRenderer_DMFallback(t *testing.T) {
	var dmText string
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{}, &platform.APIError{Method: "chat.postEphemeral", Code: "channel_restricted"}
		},
		openDMFn: func(_ context.Context, userID string) (string, error) {
			if userID != "U1" {
				t.Errorf("OpenDM(%q)", userID)
			}
			return "D9", nil
		},
		postMessageFn: func(_ context.Context, channelID, threadTS, text string, _ []platform.Control) (platform.MessageRef, error) {
			if channelID != "D9" || threadTS != "" {
				t.Errorf("PostMessage(%q, %q)", channelID, threadTS)
			}
			dmText = text
			return platform.MessageRef{ChannelID: "D9", TS: "5.6"}, nil
		},
		updateMessageFn: func(_ context.Context, ref platform.MessageRef, text string, _ []platform.Control) error {
			if ref.ChannelID != "D9" {
				t.Errorf("update ref = %+v, want DM channel", ref)
			}
			return nil
		},
		updateEphemeralFn: func(context.Context, platform.MessageRef, string, []platform.Control) error {
			t.Error("DM delivery must not use UpdateEphemeral")
			return nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "hi"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !r.ViaDM() {
		t.Error("ViaDM = false after fallback")
	}
	if !strings.HasPrefix(dmText, "hi") {
		t.Errorf("DM text = %q", dmText)
	}
	if err := r.Finalize(context.Background(), "done", nil); err != nil {
		t.Fatalf("Finalize via DM: %v", err)
	}
}

func TestRenderer_NonRestrictedStartErrorSurfaces(t *testing.T) {
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{}, errors.New("network down")
		},
		openDMFn: func(context.Context, string) (string, error) {
			t.Error("no DM fallback for non-restriction errors")
			return "", nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderer_AbortBeforeStartIsNoop(t *testing.T) {
	poster := &mockPoster{
		updateEphemeralFn: func(context.Context, platform.MessageRef, string, []platform.Control) error {
			t.Error("nothing rendered, nothing to update")
			return nil
		},
	}
	NewRenderer(poster, target).Abort(context.Background(), "notice")
}

func TestQuotaNotice(t *testing.T) {
	cases := []struct {
		name     string
		decision quota.Decision
		wantPost bool
		wantPart string
	}{
		{"denied", quota.Decision{Allowed: false, Used: 201, Limit: 200, Level: quota.LevelExceeded}, true, "used all 200"},
		{"critical", quota.Decision{Allowed: true, Used: 185, Limit: 200, Level: quota.LevelCritical}, true, "185 of 200"},
		{"safe", quota.Decision{Allowed: true, Used: 10, Limit: 200, Level: quota.LevelSafe}, false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var posted string
			poster := &mockPoster{
				postEphemeralFn: func(_ context.Context, _, _, text string) (platform.MessageRef, error) {
					posted = text
					return platform.MessageRef{}, nil
				},
			}
			QuotaNotice(context.Background(), poster, target, tc.decision)
			if tc.wantPost != (posted != "") {
				t.Fatalf("posted = %q, wantPost = %v", posted, tc.wantPost)
			}
			if tc.wantPost && !strings.Contains(posted, tc.wantPart) {
				t.Errorf("notice = %q, want %q mentioned", posted, tc.wantPart)
			}
		})
	}
}

func TestSafetyNotice_FreshEphemeralBeforeFirstFrame(t *testing.T) {
	var posted string
	poster := &mockPoster{
		postEphemeralFn: func(_ context.Context, _, _, text string) (platform.MessageRef, error) {
			posted = text
			return platform.MessageRef{}, nil
		},
	}

	SafetyNotice(context.Background(), poster, target, NewRenderer(poster, target))
	if posted != safetyNotice {
		t.Errorf("posted = %q", posted)
	}
}

func TestSafetyNotice_ReplacesMidFlightFrame(t *testing.T) {
	var updated string
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
		updateEphemeralFn: func(_ context.Context, _ platform.MessageRef, text string, _ []platform.Control) error {
			updated = text
			return nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "partial"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	SafetyNotice(context.Background(), poster, target, r)
	if updated != safetyNotice {
		t.Errorf("updated = %q, want the safety notice replacing the partial frame", updated)
	}
}

func TestFailureNotice_FreshEphemeralWhenNoRenderer(t *testing.T) {
	var posted string
	poster := &mockPoster{
		postEphemeralFn: func(_ context.Context, _, _, text string) (platform.MessageRef, error) {
			posted = text
			return platform.MessageRef{}, nil
		},
	}
	FailureNotice(context.Background(), poster, target, nil)
	if posted != failureNotice {
		t.Errorf("posted = %q", posted)
	}
}

func TestFailureNotice_UsesMidFlightRenderer(t *testing.T) {
	var updated string
	poster := &mockPoster{
		postEphemeralFn: func(context.Context, string, string, string) (platform.MessageRef, error) {
			return platform.MessageRef{ChannelID: "C1", TS: "1.2"}, nil
		},
		updateEphemeralFn: func(_ context.Context, _ platform.MessageRef, text string, _ []platform.Control) error {
			updated = text
			return nil
		},
	}

	r := NewRenderer(poster, target)
	if err := r.Push(context.Background(), "partial"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	FailureNotice(context.Background(), poster, target, r)
	if updated != failureNotice {
		t.Errorf("updated = %q, want the failure notice replacing the partial frame", updated)
	}
}
