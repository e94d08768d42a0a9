package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileActions performs the vault file operations exposed to the AI agent
// as tools. All writes stay inside the vault root.
type FileActions struct {
	NotesDir string // absolute path to the vault root
}

// NewFileActions roots the agent's file operations at VAULT_PATH.
func NewFileActions() (*FileActions, error) {
	vaultPath := os.Getenv("VAULT_PATH")
	if vaultPath == "" {
		return nil, fmt.Errorf("VAULT_PATH environment variable not set")
	}
	absPath, err := filepath.Abs(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for VAULT_PATH: %w", err)
	}
	return &FileActions{NotesDir: absPath}, nil
}

// sanitizeFilename ensures the filename is safe and within the vault.
func (fa *FileActions) sanitizeFilename(filename string) (string, error) {
	if !strings.HasSuffix(filename, ".md") {
		return "", fmt.Errorf("filename must end with .md")
	}
	// Base() prevents path traversal (e.g. filename = "../../../etc/passwd").
	cleanPath := filepath.Join(fa.NotesDir, filepath.Base(filename))
	if !strings.HasPrefix(cleanPath, fa.NotesDir) {
		return "", fmt.Errorf("invalid filename, attempts to escape vault")
	}
	return cleanPath, nil
}

// CreateMarkdownFile creates a new note. The returned string goes straight
// back to the model as the tool result.
func (fa *FileActions) CreateMarkdownFile(filename, content string) string {
	path, err := fa.sanitizeFilename(filename)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Sprintf("Error: File '%s' already exists.", filename)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Sprintf("Error: Failed to create file '%s': %v", filename, err)
	}
	return fmt.Sprintf("Success: File '%s' created.", filename)
}

// DeleteMarkdownFile removes a note.
func (fa *FileActions) DeleteMarkdownFile(filename string) string {
	path, err := fa.sanitizeFilename(filename)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Sprintf("Error: Failed to delete file '%s': %v", filename, err)
	}
	return fmt.Sprintf("Success: File '%s' deleted.", filename)
}

// EditMarkdownFile appends content to a note, creating it if needed.
func (fa *FileActions) EditMarkdownFile(filename, content string) string {
	path, err := fa.sanitizeFilename(filename)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Sprintf("Error: Failed to open file '%s' for editing: %v", filename, err)
	}
	defer f.Close()

	if _, err = f.WriteString("\n\n" + content); err != nil {
		return fmt.Sprintf("Error: Failed to write to file '%s': %v", filename, err)
	}
	return fmt.Sprintf("Success: Content appended to file '%s'.", filename)
}
