// Package budget counts prompt tokens and trims retrieved context so a RAG
// prompt stays inside the model's input window. Counting uses the tiktoken
// cl100k_base encoding when it can be loaded and otherwise falls back to a
// 4-characters-per-token heuristic.
package budget

import (
	"log/slog"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the character-to-token ratio of the heuristic counter.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved context.
	// Small enough to fit 8k-context models with room for the answer.
	DefaultMaxContextTokens = 6000

	// messageOverhead approximates the per-message framing cost in chat APIs.
	messageOverhead = 4
)

// Counter returns the number of tokens in a string.
type Counter interface {
	Count(s string) int
}

// Heuristic counts tokens as len/4, with a floor of one for non-empty input.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(s string) int { return Estimate(s) }

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. The first load may download
// the BPE ranks, so callers should expect it to fail offline.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// NewCounter returns a tiktoken counter, or the heuristic when the encoding
// cannot be loaded.
func NewCounter(log *slog.Logger) Counter {
	tk, err := NewTiktoken()
	if err != nil {
		if log != nil {
			log.Warn("budget: tiktoken unavailable, using character heuristic", slog.String("error", err.Error()))
		}
		return Heuristic{}
	}
	return tk
}

// EstimateMessages returns the token count of msgs including role and a
// fixed per-message overhead.
func EstimateMessages(c Counter, msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += c.Count(string(m.Role))
		total += c.Count(m.Content)
	}
	return total
}

// TrimContext keeps items in rank order while their combined token count fits
// maxTokens. The first item is always kept so a retrieval never collapses to
// an empty context because of one oversized chunk. A non-positive maxTokens
// disables trimming.
func TrimContext[T any](c Counter, items []T, text func(T) string, maxTokens int) []T {
	if maxTokens <= 0 || len(items) <= 1 {
		return items
	}
	used := 0
	for i, it := range items {
		used += c.Count(text(it))
		if used > maxTokens && i > 0 {
			return items[:i]
		}
	}
	return items
}
