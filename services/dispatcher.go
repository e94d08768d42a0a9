package services

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vaultrag/bridge/models"
)

const (
	// QuestionFile is the single request mailbox slot inside the plugin
	// directory. Every submission overwrites it; no history is kept.
	QuestionFile = "rag_question.json"

	// resultFilePattern names per-question response files. Keying the
	// filename on the question ID keeps two in-flight questions from
	// claiming each other's answers.
	resultFilePattern = "rag_results_%s.json"
)

// QuestionTicket identifies one submitted question and the response file
// its answer will arrive in.
type QuestionTicket struct {
	ID           string
	Question     string
	ResponseFile string
}

// Dispatcher serializes user questions into the request mailbox.
type Dispatcher struct {
	store     *LockedStore
	pluginDir string
}

// NewDispatcher creates a dispatcher writing into pluginDir.
func NewDispatcher(store *LockedStore, pluginDir string) *Dispatcher {
	return &Dispatcher{store: store, pluginDir: pluginDir}
}

// QuestionPath returns the absolute path of the request mailbox file.
func (d *Dispatcher) QuestionPath() string {
	return filepath.Join(d.pluginDir, QuestionFile)
}

// ResponsePath returns the absolute path of the response file for a
// question ID.
func (d *Dispatcher) ResponsePath(id string) string {
	return filepath.Join(d.pluginDir, fmt.Sprintf(resultFilePattern, id))
}

// Submit places a question in the request mailbox and returns its ticket.
// The mailbox file is created outside the lock when absent (fast path);
// the record is then overwritten under a single locked critical section.
// Malformed prior content is tolerated: the locked write replaces it.
func (d *Dispatcher) Submit(question string) (QuestionTicket, error) {
	id := uuid.New().String()
	ticket := QuestionTicket{
		ID:           id,
		Question:     question,
		ResponseFile: d.ResponsePath(id),
	}

	path := d.QuestionPath()
	record := models.QuestionRecord{ID: ticket.ID, Question: question}

	created, err := d.store.CreateIfAbsent(path, record)
	if err != nil {
		return QuestionTicket{}, fmt.Errorf("could not create question file: %w", err)
	}
	if created {
		log.Printf("BRIDGE: Created question file with question %s", ticket.ID)
	}

	current := models.QuestionRecord{}
	err = d.store.Update(path, &current, func() error {
		current.ID = ticket.ID
		current.Question = question
		return nil
	})
	if err != nil {
		return QuestionTicket{}, fmt.Errorf("could not write question: %w", err)
	}

	log.Printf("BRIDGE: Submitted question %s", ticket.ID)
	return ticket, nil
}
