package session

import (
	"strings"
	"sync"
)

// UtteranceBuffer accumulates words from multiple is_final Deepgram messages
// until speech_final signals the utterance is complete.
type UtteranceBuffer struct {
	mu    sync.Mutex
	words []string
}

func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

// AddWords appends words from an is_final message, skipping blanks.
func (b *UtteranceBuffer) AddWords(words []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			b.words = append(b.words, w)
		}
	}
}

// Flush returns the buffered words joined by spaces and resets the buffer.
// Returns "" if the buffer is empty.
func (b *UtteranceBuffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.words) == 0 {
		return ""
	}
	out := strings.Join(b.words, " ")
	b.words = nil
	return out
}

func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.words)
}
