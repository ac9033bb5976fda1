package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const classifyTimeout = 3 * time.Second

// Signal is the advisory sentiment/topic classification of a conversation.
// It shapes the suggestion's tone but never gates the pipeline.
type Signal struct {
	Tone       string   `json:"tone"`
	Topics     []string `json:"topics"`
	Confidence float64  `json:"confidence"`
	RiskLevel  string   `json:"risk_level"`
}

// NeutralSignal is the fallback returned when classification fails or times
// out: the pipeline proceeds as if nothing noteworthy was detected.
func NeutralSignal() Signal {
	return Signal{Tone: "neutral", Confidence: 0, RiskLevel: "low"}
}

// Completer is the model call used by the classifier.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Classifier runs a fast model over conversation text to extract tone,
// topics, and a risk estimate.
type Classifier struct {
	client Completer
	model  string
}

// NewClassifier creates a Classifier using the given client and model name.
func NewClassifier(client Completer, modelName string) *Classifier {
	return &Classifier{client: client, model: modelName}
}

const classifyPrompt = `Analyze the following workplace conversation. Respond with only a JSON object:
{"tone": "<positive|neutral|negative|urgent>", "topics": ["<topic>", ...], "confidence": <0.0-1.0>, "risk_level": "<low|medium|high>"}

Conversation:
`

// Classify analyses the conversation and returns a structured Signal. The
// call is bounded to 3 seconds; on any failure (timeout, upstream error,
// malformed JSON) it returns the neutral fallback — the suggestion pipeline
// must never block on an advisory sub-call. Cancellation propagates through
// the request context, so a timed-out call releases its connection.
func (c *Classifier) Classify(ctx context.Context, conversation string) Signal {
	if conversation == "" {
		return NeutralSignal()
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := c.client.Complete(ctx, ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "user", Content: classifyPrompt + conversation},
		},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("classification failed, using neutral fallback", "error", err)
		return NeutralSignal()
	}

	sig, err := parseSignal(raw)
	if err != nil {
		slog.Warn("failed to parse classification response", "error", err, "response", raw)
		return NeutralSignal()
	}
	return sig
}

// parseSignal robustly extracts a Signal from a model response. Small
// models frequently wrap JSON in markdown code fences or prepend
// conversational filler:
//  1. Strip markdown code fences if present
//  2. Find the first { and last } to extract the JSON object
//  3. json.Unmarshal the extracted substring
func parseSignal(resp string) (Signal, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return Signal{}, fmt.Errorf("no JSON object in response")
	}

	var sig Signal
	if err := json.Unmarshal([]byte(s[start:end+1]), &sig); err != nil {
		return Signal{}, fmt.Errorf("unmarshal signal: %w", err)
	}
	if sig.Tone == "" {
		sig.Tone = "neutral"
	}
	if sig.RiskLevel == "" {
		sig.RiskLevel = "low"
	}
	return sig, nil
}
