package platform

// Message is a single conversation message as returned by the platform.
type Message struct {
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"` // platform timestamp, seconds.fraction
	IsBot    bool   `json:"is_bot"`
	ThreadTS string `json:"thread_ts,omitempty"`
	// ReplyCount is set on channel-history messages that are thread parents.
	ReplyCount int `json:"reply_count,omitempty"`
}

// MessageRef identifies a posted message for later update or deletion.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	TS        string `json:"ts"`
}

// Control is an interactive button attached to a finalized message. Value
// carries the correlation id plus the minimal payload needed to reconstruct
// context when the user acts on it minutes later.
type Control struct {
	Action string `json:"action"` // "send", "refine", "dismiss"
	Label  string `json:"label"`
	Value  string `json:"value"`
}

// APIError is a platform-level failure (the HTTP exchange succeeded but the
// API rejected the call).
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return "platform " + e.Method + " failed: " + e.Code
}

// IsChannelRestricted reports whether the error indicates the ephemeral
// delivery path is unavailable for this conversation type, in which case the
// caller should fall back to a direct message.
func IsChannelRestricted(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	switch apiErr.Code {
	case "ephemeral_not_allowed", "channel_restricted", "not_in_channel":
		return true
	}
	return false
}
