package session

import (
	"sync"
	"testing"
)

func TestBuffer_AddWords_SkipsBlank(t *testing.T) {
	buf := NewUtteranceBuffer()
	buf.AddWords([]string{"Hello", " ", "", "world."})
	if buf.Len() != 2 {
		t.Fatalf("expected Len() == 2, got %d", buf.Len())
	}
}

func TestBuffer_Flush_JoinsAndResets(t *testing.T) {
	buf := NewUtteranceBuffer()
	buf.AddWords([]string{"I", "built"})
	buf.AddWords([]string{"a", "scheduler."})

	if got := buf.Flush(); got != "I built a scheduler." {
		t.Fatalf("unexpected flush %q", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffer empty after flush, got Len() == %d", buf.Len())
	}
	if got := buf.Flush(); got != "" {
		t.Fatalf("expected empty flush, got %q", got)
	}
}

func TestBuffer_ConcurrentAccess(t *testing.T) {
	buf := NewUtteranceBuffer()
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.AddWords([]string{"hi"})
		}()
	}
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = buf.Len()
		}()
	}
	wg.Wait()

	if buf.Len() != 10 {
		t.Fatalf("expected 10 words after concurrent AddWords, got %d", buf.Len())
	}
}
