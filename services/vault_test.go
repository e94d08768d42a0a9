package services

import (
	"testing"
)

func newTestVault(t *testing.T) *VaultStore {
	t.Helper()
	store, err := NewVaultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewVaultStore: %v", err)
	}
	return store
}

func TestVaultStore_CreateReadModify(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("notes/hello.md", "hello"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !v.Exists("notes/hello.md") {
		t.Error("created document does not exist")
	}

	content, err := v.Read("notes/hello.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content != "hello" {
		t.Errorf("content = %q, want hello", content)
	}

	if err := v.Modify("notes/hello.md", "changed"); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	content, err = v.Read("notes/hello.md")
	if err != nil {
		t.Fatalf("Read after Modify: %v", err)
	}
	if content != "changed" {
		t.Errorf("content = %q, want changed", content)
	}
}

func TestVaultStore_CreateRejectsExisting(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("a.md", "x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Create("a.md", "y"); err == nil {
		t.Error("expected error creating an existing document")
	}
}

func TestVaultStore_EscapingPathsStayInVault(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create("../outside.md", "x"); err != nil {
		t.Fatalf("Create with traversal: %v", err)
	}
	// Clean("/../outside.md") lands at the vault root, not above it.
	if !v.Exists("outside.md") {
		t.Error("traversal path was not confined to the vault root")
	}
}

func TestVaultStore_ReadMissingDocument(t *testing.T) {
	v := newTestVault(t)

	if _, err := v.Read("nope.md"); err == nil {
		t.Error("expected error reading a missing document")
	}
	if v.Exists("nope.md") {
		t.Error("missing document reported as existing")
	}
}

func TestVaultStore_CreateFolder(t *testing.T) {
	v := newTestVault(t)

	if err := v.CreateFolder("RAG Answers"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if !v.Exists("RAG Answers") {
		t.Error("created folder does not exist")
	}
}
