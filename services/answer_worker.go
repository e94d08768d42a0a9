package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultrag/bridge/models"
)

// AnswerWorker is the answering side of the mailbox protocol. It polls the
// question file, runs the RAG pipeline for each consumed question, and
// writes the per-question response file the bridge poller is waiting for.
type AnswerWorker struct {
	store      *LockedStore
	dispatcher *Dispatcher
	ragService RAGService

	// CheckInterval is how often the question mailbox is checked.
	CheckInterval time.Duration
}

// NewAnswerWorker creates a worker answering questions from the
// dispatcher's mailbox.
func NewAnswerWorker(store *LockedStore, dispatcher *Dispatcher, ragService RAGService) *AnswerWorker {
	return &AnswerWorker{
		store:         store,
		dispatcher:    dispatcher,
		ragService:    ragService,
		CheckInterval: time.Second,
	}
}

// Run loops until ctx is cancelled. Errors answering one question are
// logged and never stop the loop.
func (w *AnswerWorker) Run(ctx context.Context) {
	w.sweepOrphans()
	log.Printf("WORKER: Watching question file: %s", w.dispatcher.QuestionPath())
	for {
		select {
		case <-ctx.Done():
			log.Println("WORKER: Context cancelled, shutting down.")
			return
		case <-time.After(w.CheckInterval):
		}

		record, ok, err := w.takeQuestion()
		if err != nil {
			log.Printf("WORKER ERROR: Could not consume question: %v", err)
			continue
		}
		if !ok {
			continue
		}

		if err := w.answer(ctx, record); err != nil {
			log.Printf("WORKER ERROR: Could not answer question %s: %v", record.ID, err)
		}
	}
}

// takeQuestion consumes the question mailbox if it holds a question. Read
// and removal happen inside one locked critical section, so a submission
// landing mid-consume is never silently dropped.
func (w *AnswerWorker) takeQuestion() (models.QuestionRecord, bool, error) {
	path := w.dispatcher.QuestionPath()
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return models.QuestionRecord{}, false, nil
	}

	record := models.QuestionRecord{}
	ok, err := w.store.Take(path, &record)
	if err != nil || !ok {
		return models.QuestionRecord{}, false, err
	}
	if record.Question == "" {
		return models.QuestionRecord{}, false, nil
	}
	return record, true, nil
}

// answer runs the RAG pipeline and writes the response file for the
// question's ID.
func (w *AnswerWorker) answer(ctx context.Context, record models.QuestionRecord) error {
	log.Printf("WORKER: Answering question %s: '%s'", record.ID, record.Question)

	answer, sources, err := w.ragService.Answer(ctx, record.Question)
	if err != nil {
		return fmt.Errorf("rag pipeline failed: %w", err)
	}

	result := models.ResultRecord{
		Question: record.Question,
		Answer:   answer,
		Sources:  sources,
	}
	path := w.dispatcher.ResponsePath(record.ID)
	written := models.ResultRecord{}
	err = w.store.Update(path, &written, func() error {
		written = result
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not write response file: %w", err)
	}
	log.Printf("WORKER: Response written to %s", path)
	return nil
}

// sweepOrphans removes response files written before this worker started.
// Their IDs belong to abandoned sessions, so nothing will ever consume them.
func (w *AnswerWorker) sweepOrphans() {
	start := time.Now()
	pattern := w.dispatcher.ResponsePath("*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(start) {
			continue
		}
		if err := w.store.Remove(path); err != nil {
			log.Printf("WORKER WARN: Could not sweep orphaned response %s: %v", path, err)
		} else {
			log.Printf("WORKER: Swept orphaned response %s", path)
		}
	}
}
