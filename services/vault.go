package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentStore is the host-owned document capability the bridge writes
// answers through. Paths are vault-relative.
type DocumentStore interface {
	Read(path string) (string, error)
	Modify(path, content string) error
	Create(path, content string) error
	CreateFolder(path string) error
	Exists(path string) bool
}

// VaultStore implements DocumentStore directly over the vault directory.
type VaultStore struct {
	Root string // absolute path to the vault root
}

// NewVaultStore resolves the vault root and returns a store over it.
func NewVaultStore(root string) (*VaultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("vault path not set")
	}
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute vault path: %w", err)
	}
	return &VaultStore{Root: absPath}, nil
}

// resolve joins a vault-relative path onto the root, rejecting paths that
// escape the vault.
func (v *VaultStore) resolve(path string) (string, error) {
	cleanPath := filepath.Join(v.Root, filepath.Clean("/"+path))
	if !strings.HasPrefix(cleanPath, v.Root) {
		return "", fmt.Errorf("invalid path %q, attempts to escape vault", path)
	}
	return cleanPath, nil
}

func (v *VaultStore) Read(path string) (string, error) {
	full, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return string(content), nil
}

func (v *VaultStore) Modify(path, content string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to modify document %s: %w", path, err)
	}
	return nil
}

func (v *VaultStore) Create(path, content string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("document %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create parent folder for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create document %s: %w", path, err)
	}
	return nil
}

func (v *VaultStore) CreateFolder(path string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

func (v *VaultStore) Exists(path string) bool {
	full, err := v.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}
