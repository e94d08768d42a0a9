package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestBridge(t *testing.T, docs *fakeDocStore, notifier *fakeNotifier) *Bridge {
	t.Helper()
	store := NewLockedStore()
	dispatcher := NewDispatcher(store, t.TempDir())
	poller := NewPoller(store, docs, notifier)
	poller.Interval = 5 * time.Millisecond
	poller.MaxRetries = 2
	return NewBridge(dispatcher, poller, docs)
}

func TestBridgeAsk_RejectsEmptyQuestion(t *testing.T) {
	bridge := newTestBridge(t, newFakeDocStore(), &fakeNotifier{})

	if _, err := bridge.Ask(context.Background(), "", "doc.md"); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestBridgeAsk_CreatesMissingDocument(t *testing.T) {
	docs := newFakeDocStore()
	bridge := newTestBridge(t, docs, &fakeNotifier{})

	if _, err := bridge.Ask(context.Background(), "q", "new-doc.md"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	content, err := docs.Read("new-doc.md")
	if err != nil {
		t.Fatalf("document was not created: %v", err)
	}
	if !strings.Contains(content, AnswerDelimiter) {
		t.Errorf("created document has no answer delimiter:\n%s", content)
	}
}

func TestBridgeAsk_DerivesDocumentNameWhenEmpty(t *testing.T) {
	docs := newFakeDocStore()
	bridge := newTestBridge(t, docs, &fakeNotifier{})

	if _, err := bridge.Ask(context.Background(), "What is X, really?!", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	want := "RAG Answers/What is X really.md"
	if !docs.Exists(want) {
		t.Errorf("derived document %q was not created", want)
	}
}

func TestBridgeAsk_SupersedesActivePoll(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	bridge := newTestBridge(t, docs, notifier)
	bridge.poller.MaxRetries = 1000

	if _, err := bridge.Ask(context.Background(), "first", "doc.md"); err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if _, err := bridge.Ask(context.Background(), "second", "doc.md"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}

	// Only the second poll stays registered; the first was cancelled.
	deadline := time.Now().Add(5 * time.Second)
	for {
		bridge.mu.Lock()
		n := len(bridge.polls)
		bridge.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("polls registered = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAnswerDocumentName(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"What is X?", "What is X.md"},
		{"hello/../world", "helloworld.md"},
		{"", "Question.md"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50) + ".md"},
		// Truncation counts runes so multibyte names never split mid-rune.
		{strings.Repeat("é", 80), strings.Repeat("é", 50) + ".md"},
	}
	for _, tt := range tests {
		got := answerDocumentName(tt.question)
		if got != tt.want {
			t.Errorf("answerDocumentName(%q) = %q, want %q", tt.question, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("answerDocumentName(%q) produced invalid UTF-8: %q", tt.question, got)
		}
	}
}
