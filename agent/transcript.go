package agent

import (
	"sync"
	"time"

	"github.com/hupe1980/aide/model"
)

// Entry is one element of a session transcript. Entries are append-only;
// compaction may replace a prefix of old entries with a single summary entry
// but individual entries are never removed.
type Entry struct {
	Role      string            `json:"role"` // user, assistant, capability_result
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// newEntry constructs a transcript entry stamped with the current time.
func newEntry(role, content string, metadata map[string]string) Entry {
	return Entry{Role: role, Content: content, Timestamp: time.Now().UTC(), Metadata: metadata}
}

// session owns one user's transcript. A turn holds the session lock for its
// full duration, giving single-threaded cooperative execution per session
// while independent sessions run concurrently.
type session struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *session) append(e Entry) {
	s.entries = append(s.entries, e)
}

// messages converts the most recent window of the transcript to model
// messages.
func (s *session) messages(window int) []model.Message {
	entries := s.entries
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	msgs := make([]model.Message, len(entries))
	for i, e := range entries {
		msgs[i] = model.Message{Role: e.Role, Content: e.Content}
	}
	return msgs
}

// contentChars sums the content length of every entry, the input to token
// estimation.
func (s *session) contentChars() int {
	total := 0
	for _, e := range s.entries {
		total += len(e.Content)
	}
	return total
}

// TokenEstimator approximates the token footprint of text. The default is a
// fixed character ratio; substitute a real tokenizer without touching the
// compaction policy.
type TokenEstimator interface {
	Estimate(chars int) int
}

// CharRatioEstimator estimates tokens as chars divided by a fixed ratio.
type CharRatioEstimator struct {
	// CharsPerToken defaults to 4 when zero or negative.
	CharsPerToken int
}

// Estimate implements TokenEstimator.
func (e CharRatioEstimator) Estimate(chars int) int {
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return chars / ratio
}
