package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func okEnvelope(data any) []byte {
	b, _ := json.Marshal(map[string]any{"ok": true, "data": data})
	return b
}

func TestPostEphemeral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postEphemeral" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["channel"] != "C1" || req["user"] != "U1" {
			t.Errorf("request = %+v", req)
		}
		w.Write(okEnvelope(MessageRef{ChannelID: "C1", TS: "111.222"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "xoxb-test")
	ref, err := c.PostEphemeral(context.Background(), "C1", "U1", "draft…")
	if err != nil {
		t.Fatalf("PostEphemeral: %v", err)
	}
	if ref.TS != "111.222" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestCall_APIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_restricted"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	_, err := c.PostEphemeral(context.Background(), "C1", "U1", "text")
	if err == nil {
		t.Fatal("expected API error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.Code != "channel_restricted" || apiErr.Method != "chat.postEphemeral" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !IsChannelRestricted(err) {
		t.Error("IsChannelRestricted = false for channel_restricted")
	}
}

func TestIsChannelRestricted(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{Code: "ephemeral_not_allowed"}, true},
		{&APIError{Code: "channel_restricted"}, true},
		{&APIError{Code: "not_in_channel"}, true},
		{&APIError{Code: "invalid_auth"}, false},
		{errors.New("network down"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsChannelRestricted(tc.err); got != tc.want {
			t.Errorf("IsChannelRestricted(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCall_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(okEnvelope(MessageRef{ChannelID: "C1", TS: "1.2"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	if _, err := c.PostMessage(context.Background(), "C1", "", "hi", nil); err != nil {
		t.Fatalf("PostMessage after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestHistory(t *testing.T) {
	oldest := time.Now().Add(-time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/conversations.history" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("channel") != "C1" || q.Get("limit") != "40" {
			t.Errorf("query = %v", q)
		}
		w.Write(okEnvelope(map[string]any{"messages": []Message{
			{AuthorID: "U1", Text: "hello", TS: "1.0"},
			{AuthorID: "B1", Text: "bot", TS: "2.0", IsBot: true},
		}}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	msgs, err := c.History(context.Background(), "C1", oldest, 40)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hello" || !msgs[1].IsBot {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("ts") != "10.5" {
			t.Errorf("ts = %q", q.Get("ts"))
		}
		w.Write(okEnvelope(map[string]any{"messages": []Message{{Text: "parent", TS: "10.5"}}}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	msgs, err := c.Replies(context.Background(), "C1", "10.5")
	if err != nil {
		t.Fatalf("Replies: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "parent" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestOpenDM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.open" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write(okEnvelope(map[string]string{"channel_id": "D42"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	ch, err := c.OpenDM(context.Background(), "U1")
	if err != nil {
		t.Fatalf("OpenDM: %v", err)
	}
	if ch != "D42" {
		t.Errorf("channel = %q, want D42", ch)
	}
}

func TestUpdateMessage_Payload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.update" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Channel  string    `json:"channel"`
			TS       string    `json:"ts"`
			Text     string    `json:"text"`
			Controls []Control `json:"controls"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Channel != "D42" || req.TS != "3.4" || len(req.Controls) != 1 {
			t.Errorf("request = %+v", req)
		}
		w.Write(okEnvelope(nil))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	err := c.UpdateMessage(context.Background(), MessageRef{ChannelID: "D42", TS: "3.4"}, "final", []Control{{Action: "send", Label: "Send", Value: "sg1"}})
	if err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
}
