package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultrag/bridge/models"
)

func TestLockedStore_CreateIfAbsent(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")

	created, err := store.CreateIfAbsent(path, models.QuestionRecord{Question: "hello"})
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !created {
		t.Error("expected creation on first call")
	}

	created, err = store.CreateIfAbsent(path, models.QuestionRecord{Question: "other"})
	if err != nil {
		t.Fatalf("CreateIfAbsent second call: %v", err)
	}
	if created {
		t.Error("expected no creation when file exists")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading mailbox: %v", err)
	}
	var record models.QuestionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.Question != "hello" {
		t.Errorf("Question = %q, want hello", record.Question)
	}
}

func TestLockedStore_UpdateReadsCurrentContent(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	if _, err := store.CreateIfAbsent(path, models.QuestionRecord{ID: "1", Question: "old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record := models.QuestionRecord{}
	err := store.Update(path, &record, func() error {
		if record.Question != "old" {
			t.Errorf("operation saw %q, want old", record.Question)
		}
		record.Question = "new"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reread := models.QuestionRecord{}
	if err := store.Read(path, &reread); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.Question != "new" {
		t.Errorf("Question = %q, want new", reread.Question)
	}
}

func TestLockedStore_UpdateToleratesMalformedContent(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record := models.QuestionRecord{}
	err := store.Update(path, &record, func() error {
		if record.Question != "" {
			t.Errorf("malformed content should leave the default record, got %q", record.Question)
		}
		record.Question = "recovered"
		return nil
	})
	if err != nil {
		t.Fatalf("Update on malformed content: %v", err)
	}

	reread := models.QuestionRecord{}
	if err := store.Read(path, &reread); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.Question != "recovered" {
		t.Errorf("Question = %q, want recovered", reread.Question)
	}
}

func TestLockedStore_UpdateMissingFileUsesDefault(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")

	record := models.QuestionRecord{Question: "default"}
	err := store.Update(path, &record, func() error { return nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reread := models.QuestionRecord{}
	if err := store.Read(path, &reread); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.Question != "default" {
		t.Errorf("Question = %q, want default", reread.Question)
	}
}

func TestLockedStore_ReadKeepsDefaultOnPartialParse(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "response.json")
	// "answer" decodes before "sources" hits the type error; none of it
	// may leak into the caller's default record.
	if err := os.WriteFile(path, []byte(`{"answer":"half-parsed","sources":5}`), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result := models.ResultRecord{Answer: PlaceholderAnswer, Sources: []string{}}
	if err := store.Read(path, &result); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Answer != PlaceholderAnswer {
		t.Errorf("Answer = %q, want the untouched default %q", result.Answer, PlaceholderAnswer)
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want the untouched empty default", result.Sources)
	}
}

func TestLockedStore_UpdateKeepsDefaultOnPartialParse(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	if err := os.WriteFile(path, []byte(`{"question":"leaked","id":5}`), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record := models.QuestionRecord{}
	err := store.Update(path, &record, func() error {
		if record.Question != "" || record.ID != "" {
			t.Errorf("partial decode leaked into default record: %+v", record)
		}
		record.Question = "recovered"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestLockedStore_TakeConsumesFile(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	if _, err := store.CreateIfAbsent(path, models.QuestionRecord{ID: "1", Question: "q"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record := models.QuestionRecord{}
	ok, err := store.Take(path, &record)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if !ok {
		t.Fatal("Take reported no file")
	}
	if record.Question != "q" {
		t.Errorf("Question = %q, want q", record.Question)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after Take")
	}
}

func TestLockedStore_TakeMissingFile(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")

	record := models.QuestionRecord{}
	ok, err := store.Take(path, &record)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if ok {
		t.Error("Take reported a record for a missing file")
	}
}

func TestLockedStore_RemoveIdempotent(t *testing.T) {
	store := NewLockedStore()
	path := filepath.Join(t.TempDir(), "mailbox.json")
	if _, err := store.CreateIfAbsent(path, models.QuestionRecord{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after Remove")
	}
	// Removing an already-gone file counts as removed.
	if err := store.Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
