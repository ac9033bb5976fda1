// Package platform is the HTTP client for the messaging platform's bot API:
// conversation history, thread replies, ephemeral rendering, and direct
// messages. The wire protocol itself belongs to the platform; this package
// only wraps the handful of calls the suggestion pipeline needs.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Client communicates with the messaging platform bot API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a platform client with the given bot token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

// call posts a JSON request to an API method, retrying on rate limits, and
// decodes the envelope into out (which may be nil).
func (c *Client) call(ctx context.Context, method string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.doCall(ctx, method, body, out)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doCall(ctx context.Context, method string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(respBody))
	}

	var envelope struct {
		OK    bool            `json:"ok"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding %s data: %w", method, err)
		}
	}
	return nil
}

// get performs a GET API call with query parameters.
func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(respBody))
	}

	var envelope struct {
		OK    bool            `json:"ok"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding %s data: %w", method, err)
		}
	}
	return nil
}

// History returns channel messages newer than oldest, most recent first as
// the platform delivers them.
func (c *Client) History(ctx context.Context, channelID string, oldest time.Time, limit int) ([]Message, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("oldest", fmt.Sprintf("%d", oldest.Unix()))
	params.Set("limit", fmt.Sprintf("%d", limit))

	var data struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "conversations.history", params, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// Replies returns a thread: the parent message followed by its replies.
func (c *Client) Replies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("ts", threadTS)

	var data struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "conversations.replies", params, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// PostEphemeral posts a message visible only to userID and returns the
// message reference used for subsequent updates.
func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) (MessageRef, error) {
	req := map[string]any{
		"channel": channelID,
		"user":    userID,
		"text":    text,
	}
	var data MessageRef
	if err := c.call(ctx, "chat.postEphemeral", req, &data); err != nil {
		return MessageRef{}, err
	}
	return data, nil
}

// UpdateEphemeral replaces the text (and optionally controls) of a
// previously posted ephemeral message.
func (c *Client) UpdateEphemeral(ctx context.Context, ref MessageRef, text string, controls []Control) error {
	req := map[string]any{
		"channel": ref.ChannelID,
		"ts":      ref.TS,
		"text":    text,
	}
	if len(controls) > 0 {
		req["controls"] = controls
	}
	return c.call(ctx, "chat.updateEphemeral", req, nil)
}

// UpdateMessage replaces the text (and optionally controls) of a regular
// message, such as a DM-delivered suggestion.
func (c *Client) UpdateMessage(ctx context.Context, ref MessageRef, text string, controls []Control) error {
	req := map[string]any{
		"channel": ref.ChannelID,
		"ts":      ref.TS,
		"text":    text,
	}
	if len(controls) > 0 {
		req["controls"] = controls
	}
	return c.call(ctx, "chat.update", req, nil)
}

// DeleteEphemeral removes an ephemeral message.
func (c *Client) DeleteEphemeral(ctx context.Context, ref MessageRef) error {
	req := map[string]any{
		"channel": ref.ChannelID,
		"ts":      ref.TS,
	}
	return c.call(ctx, "chat.deleteEphemeral", req, nil)
}

// OpenDM opens (or reuses) a direct-message channel with the user.
func (c *Client) OpenDM(ctx context.Context, userID string) (string, error) {
	var data struct {
		ChannelID string `json:"channel_id"`
	}
	if err := c.call(ctx, "conversations.open", map[string]any{"user": userID}, &data); err != nil {
		return "", err
	}
	return data.ChannelID, nil
}

// PostMessage posts a regular channel message, optionally threaded, with
// optional interactive controls. Used for the DM fallback path and for
// sending an accepted suggestion into the conversation.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string, controls []Control) (MessageRef, error) {
	req := map[string]any{
		"channel": channelID,
		"text":    text,
	}
	if threadTS != "" {
		req["thread_ts"] = threadTS
	}
	if len(controls) > 0 {
		req["controls"] = controls
	}
	var data MessageRef
	if err := c.call(ctx, "chat.postMessage", req, &data); err != nil {
		return MessageRef{}, err
	}
	return data, nil
}
