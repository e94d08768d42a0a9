package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaultrag/bridge/models"
)

// fakeDocStore is an in-memory DocumentStore.
type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]string
	// staleReads makes Read ignore Modify, simulating a host that never
	// persists the merge.
	staleReads bool
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]string)}
}

func (f *fakeDocStore) Read(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.docs[path]
	if !ok {
		return "", fmt.Errorf("document %s not found", path)
	}
	return content, nil
}

func (f *fakeDocStore) Modify(path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleReads {
		return nil
	}
	f.docs[path] = content
	return nil
}

func (f *fakeDocStore) Create(path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; ok {
		return fmt.Errorf("document %s already exists", path)
	}
	f.docs[path] = content
	return nil
}

func (f *fakeDocStore) CreateFolder(string) error { return nil }

func (f *fakeDocStore) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[path]
	return ok
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newTestPoller(t *testing.T, docs *fakeDocStore, notifier *fakeNotifier) (*Poller, *Dispatcher) {
	t.Helper()
	store := NewLockedStore()
	dispatcher := NewDispatcher(store, t.TempDir())
	poller := NewPoller(store, docs, notifier)
	poller.Interval = 5 * time.Millisecond
	poller.MaxRetries = 3
	return poller, dispatcher
}

func writeResponse(t *testing.T, path string, result models.ResultRecord) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write response: %v", err)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not finish in time")
	}
}

func TestPoller_ExhaustsWhenNoResponseAppears(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	poller, _ := newTestPoller(t, docs, notifier)

	ticket := QuestionTicket{
		ID:           "t1",
		Question:     "q",
		ResponseFile: filepath.Join(t.TempDir(), "rag_results_t1.json"),
	}
	waitDone(t, poller.Await(context.Background(), ticket, "doc.md"))

	msgs := notifier.all()
	if len(msgs) != 1 {
		t.Fatalf("notifications = %d, want exactly 1: %v", len(msgs), msgs)
	}
	if docs.docs["doc.md"] != "header\n---\n" {
		t.Error("document mutated despite exhaustion")
	}
}

func TestPoller_MergesAndCleansUpResponse(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "# Title\n\n---\n\nolder answer"
	notifier := &fakeNotifier{}
	poller, dispatcher := newTestPoller(t, docs, notifier)

	ticket, err := dispatcher.Submit("What is X?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	writeResponse(t, ticket.ResponseFile, models.ResultRecord{Answer: "Y", Sources: []string{}})

	waitDone(t, poller.Await(context.Background(), ticket, "doc.md"))

	doc := docs.docs["doc.md"]
	for _, want := range []string{"## What is X?", "Y", NoSourcesLine, "older answer"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if !strings.HasPrefix(doc, "# Title") {
		t.Errorf("header not preserved:\n%s", doc)
	}
	if strings.Index(doc, "## What is X?") > strings.Index(doc, "older answer") {
		t.Errorf("new answer not inserted above old content:\n%s", doc)
	}
	if _, err := os.Stat(ticket.ResponseFile); !os.IsNotExist(err) {
		t.Error("response file not deleted after merge")
	}
}

func TestPoller_ResponseAppearingLate(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	poller, dispatcher := newTestPoller(t, docs, notifier)
	poller.Interval = 10 * time.Millisecond
	poller.MaxRetries = 50

	ticket, err := dispatcher.Submit("late question")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := poller.Await(context.Background(), ticket, "doc.md")
	time.Sleep(30 * time.Millisecond)
	writeResponse(t, ticket.ResponseFile, models.ResultRecord{Answer: "eventually"})
	waitDone(t, done)

	if !strings.Contains(docs.docs["doc.md"], "eventually") {
		t.Errorf("late answer not merged:\n%s", docs.docs["doc.md"])
	}
}

func TestPoller_MalformedResponseUsesDefaults(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	poller, dispatcher := newTestPoller(t, docs, notifier)

	ticket, err := dispatcher.Submit("q")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := os.WriteFile(ticket.ResponseFile, []byte("not json"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	waitDone(t, poller.Await(context.Background(), ticket, "doc.md"))

	doc := docs.docs["doc.md"]
	if !strings.Contains(doc, PlaceholderAnswer) {
		t.Errorf("placeholder answer not merged:\n%s", doc)
	}
	if !strings.Contains(doc, NoSourcesLine) {
		t.Errorf("no-sources line not merged:\n%s", doc)
	}
}

func TestPoller_PartiallyParseableResponseUsesDefaults(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	poller, dispatcher := newTestPoller(t, docs, notifier)

	ticket, err := dispatcher.Submit("q")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Valid JSON prefix, type error later: the decoded answer must not
	// reach the document.
	if err := os.WriteFile(ticket.ResponseFile, []byte(`{"answer":"half-parsed","sources":5}`), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	waitDone(t, poller.Await(context.Background(), ticket, "doc.md"))

	doc := docs.docs["doc.md"]
	if strings.Contains(doc, "half-parsed") {
		t.Errorf("partially decoded answer merged into document:\n%s", doc)
	}
	if !strings.Contains(doc, PlaceholderAnswer) {
		t.Errorf("placeholder answer not merged:\n%s", doc)
	}
	if !strings.Contains(doc, NoSourcesLine) {
		t.Errorf("no-sources line not merged:\n%s", doc)
	}
}

func TestPoller_CancellationStopsSilently(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	notifier := &fakeNotifier{}
	poller, _ := newTestPoller(t, docs, notifier)
	poller.MaxRetries = 1000

	ctx, cancel := context.WithCancel(context.Background())
	ticket := QuestionTicket{
		ID:           "t2",
		Question:     "q",
		ResponseFile: filepath.Join(t.TempDir(), "rag_results_t2.json"),
	}
	done := poller.Await(ctx, ticket, "doc.md")
	cancel()
	waitDone(t, done)

	if msgs := notifier.all(); len(msgs) != 0 {
		t.Errorf("cancellation produced notifications: %v", msgs)
	}
	if docs.docs["doc.md"] != "header\n---\n" {
		t.Error("document mutated despite cancellation")
	}
}

func TestPoller_VerificationFailureIsBounded(t *testing.T) {
	docs := newFakeDocStore()
	docs.docs["doc.md"] = "header\n---\n"
	docs.staleReads = true
	notifier := &fakeNotifier{}
	poller, dispatcher := newTestPoller(t, docs, notifier)
	poller.MaxRetries = 2

	ticket, err := dispatcher.Submit("q")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	writeResponse(t, ticket.ResponseFile, models.ResultRecord{Answer: "never lands"})

	waitDone(t, poller.Await(context.Background(), ticket, "doc.md"))

	msgs := notifier.all()
	if len(msgs) == 0 {
		t.Fatal("expected notifications for verification failures")
	}
	last := msgs[len(msgs)-1]
	if !strings.Contains(last, "Giving up") {
		t.Errorf("final notification = %q, want a giving-up message", last)
	}
}
