package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vaultrag/bridge/models"
)

const (
	// DefaultPollInterval is the delay between response file checks.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxRetries bounds both the wait-for-file checks and the
	// merge-verification retries.
	DefaultMaxRetries = 30
)

// Poller watches for a question's response file, merges the answer into
// the target document, verifies the merge, and cleans the file up.
type Poller struct {
	store    *LockedStore
	docs     DocumentStore
	notifier Notifier

	// Interval and MaxRetries default to the package constants; tests
	// shrink them.
	Interval   time.Duration
	MaxRetries int
}

// NewPoller creates a poller over the given mailbox store and document store.
func NewPoller(store *LockedStore, docs DocumentStore, notifier Notifier) *Poller {
	return &Poller{
		store:      store,
		docs:       docs,
		notifier:   notifier,
		Interval:   DefaultPollInterval,
		MaxRetries: DefaultMaxRetries,
	}
}

// Await starts watching for the ticket's response file and returns
// immediately; the polling sequence runs in its own goroutine until the
// answer is merged and verified, the retry budget is exhausted, or ctx is
// cancelled. When it is done, done is closed. Cancellation produces no
// notification and no document mutation.
func (p *Poller) Await(ctx context.Context, ticket QuestionTicket, docPath string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.poll(ctx, ticket, docPath)
	}()
	return done
}

// poll runs the retry loop. Checks are strictly sequential: the next check
// is scheduled only after the previous one, including any merge work, has
// finished.
func (p *Poller) poll(ctx context.Context, ticket QuestionTicket, docPath string) {
	waits := 0
	verifyFails := 0
	for {
		if _, err := os.Stat(ticket.ResponseFile); err == nil {
			verified, err := p.processResponse(ticket, docPath)
			if err != nil {
				p.notifier.Notify(fmt.Sprintf("Failed to process answer: %v", err))
				return
			}
			if verified {
				p.notifier.Notify("Answer added to " + docPath)
				return
			}
			// The merge did not land. Leave the response file in place
			// and try the whole cycle again after the usual delay, on a
			// separate bounded counter so a merge that can never verify
			// still terminates.
			verifyFails++
			if verifyFails >= p.MaxRetries {
				p.cleanup(ticket)
				p.notifier.Notify("Could not verify answer in " + docPath + ". Giving up.")
				return
			}
			p.notifier.Notify("Answer not yet visible in " + docPath + ". Retrying...")
		} else {
			waits++
			if waits >= p.MaxRetries {
				p.notifier.Notify("No answer arrived for question. Is the answering process running?")
				return
			}
		}

		select {
		case <-ctx.Done():
			log.Printf("BRIDGE: Polling for question %s cancelled", ticket.ID)
			return
		case <-time.After(p.Interval):
		}
	}
}

// processResponse handles one FOUND state: lock, parse, merge, verify,
// clean up. It returns whether the merged block was verified in the
// document. The response file is deleted on a verified merge and kept for
// the retry path otherwise; deletion failures are logged, not escalated.
func (p *Poller) processResponse(ticket QuestionTicket, docPath string) (verified bool, err error) {
	result := models.ResultRecord{Answer: PlaceholderAnswer, Sources: []string{}}
	if err := p.store.Read(ticket.ResponseFile, &result); err != nil {
		p.cleanup(ticket)
		return false, fmt.Errorf("could not read response file: %w", err)
	}

	block := RenderAnswerBlock(ticket.Question, result)

	current, err := p.docs.Read(docPath)
	if err != nil {
		p.cleanup(ticket)
		return false, fmt.Errorf("could not read target document: %w", err)
	}
	merged := MergeAnswer(current, block)
	if err := p.docs.Modify(docPath, merged); err != nil {
		p.cleanup(ticket)
		return false, fmt.Errorf("could not write target document: %w", err)
	}

	reread, err := p.docs.Read(docPath)
	if err != nil {
		p.cleanup(ticket)
		return false, fmt.Errorf("could not re-read target document: %w", err)
	}
	if !strings.Contains(reread, block) {
		log.Printf("BRIDGE: Merged block for question %s not found on re-read", ticket.ID)
		return false, nil
	}

	p.cleanup(ticket)
	return true, nil
}

// cleanup removes the response file. Already-gone counts as cleaned.
func (p *Poller) cleanup(ticket QuestionTicket) {
	if err := p.store.Remove(ticket.ResponseFile); err != nil {
		log.Printf("WARN: could not delete response file for question %s: %v", ticket.ID, err)
	}
}
