package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// ragFolder is where answer documents are created when the caller names a
// document that does not exist yet.
const ragFolder = "RAG Answers"

// Bridge owns one question/answer session per target document: submitting
// a question dispatches it into the mailbox and starts a poll for the
// answer, cancelling any poll still running for the same document.
type Bridge struct {
	dispatcher *Dispatcher
	poller     *Poller
	docs       DocumentStore

	mu    sync.Mutex
	polls map[string]*pollHandle
}

// pollHandle identifies one running poll so a finished poll only clears
// its own slot.
type pollHandle struct {
	cancel context.CancelFunc
}

// NewBridge creates the bridge coordinator.
func NewBridge(dispatcher *Dispatcher, poller *Poller, docs DocumentStore) *Bridge {
	return &Bridge{
		dispatcher: dispatcher,
		poller:     poller,
		docs:       docs,
		polls:      make(map[string]*pollHandle),
	}
}

// Ask submits a question and begins polling for its answer into docPath.
// It returns as soon as the question is dispatched; the answer arrives in
// the document later. A still-running poll for the same document is
// superseded and cancelled.
func (b *Bridge) Ask(ctx context.Context, question, docPath string) (QuestionTicket, error) {
	if question == "" {
		return QuestionTicket{}, fmt.Errorf("question must not be empty")
	}
	if docPath == "" {
		docPath = filepath.Join(ragFolder, answerDocumentName(question))
	}

	if err := b.ensureDocument(docPath, question); err != nil {
		return QuestionTicket{}, err
	}

	ticket, err := b.dispatcher.Submit(question)
	if err != nil {
		return QuestionTicket{}, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	handle := &pollHandle{cancel: cancel}
	b.mu.Lock()
	if prev, ok := b.polls[docPath]; ok {
		log.Printf("BRIDGE: New question supersedes active poll for %s", docPath)
		prev.cancel()
	}
	b.polls[docPath] = handle
	b.mu.Unlock()

	done := b.poller.Await(pollCtx, ticket, docPath)
	go func() {
		<-done
		cancel()
		b.mu.Lock()
		// Only clear the slot if it is still ours; a newer question may
		// have replaced it.
		if b.polls[docPath] == handle {
			delete(b.polls, docPath)
		}
		b.mu.Unlock()
	}()

	return ticket, nil
}

// answerDocumentName derives a markdown filename from a question, keeping
// letters, digits and spaces and truncating to 50 characters. Truncation
// counts runes, not bytes, so multibyte names stay valid UTF-8.
func answerDocumentName(question string) string {
	var b []rune
	for _, r := range question {
		if isWordRune(r) {
			b = append(b, r)
		}
	}
	if len(b) > 50 {
		b = b[:50]
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		name = "Question"
	}
	return name + ".md"
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' '
}

// ensureDocument creates the target document (and its folder) when absent,
// seeded with a header region so merged answers land below the title.
func (b *Bridge) ensureDocument(docPath, question string) error {
	if b.docs.Exists(docPath) {
		return nil
	}
	if dir := filepath.Dir(docPath); dir != "." {
		if err := b.docs.CreateFolder(dir); err != nil {
			return fmt.Errorf("could not create folder for %s: %w", docPath, err)
		}
	}
	initial := "# " + question + "\n\n" + AnswerDelimiter + "\n"
	if err := b.docs.Create(docPath, initial); err != nil {
		return fmt.Errorf("could not create document %s: %w", docPath, err)
	}
	log.Printf("BRIDGE: Created answer document %s", docPath)
	return nil
}
