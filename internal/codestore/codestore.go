// Package codestore resolves content-addressed code references. The ledger
// uses it only to re-derive code hashes before clones; it never interprets the
// bytes.
package codestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store resolves a code reference to its bytes and content hash.
type Store interface {
	// Resolve returns the code bytes addressed by codeRef together with their
	// hex-encoded sha256 hash. The contract name selects an entry point within
	// the referenced unit; stores that address whole units may ignore it.
	Resolve(ctx context.Context, codeRef, contract string) ([]byte, string, error)
}

// HashBytes is the canonical content hash used across the registry.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DirStore resolves code references as file paths under a root directory.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Resolve reads the referenced file and hashes it.
func (s *DirStore) Resolve(ctx context.Context, codeRef, contract string) ([]byte, string, error) {
	path := filepath.Join(s.root, filepath.Clean("/"+codeRef))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve code ref %q: %w", codeRef, err)
	}
	return b, HashBytes(b), nil
}

// MemoryStore is an in-memory Store used by the seed tool and tests.
type MemoryStore struct {
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores code bytes under a reference and returns their hash.
func (s *MemoryStore) Put(codeRef string, b []byte) string {
	s.objects[codeRef] = b
	return HashBytes(b)
}

// Replace swaps the bytes behind an existing reference without changing the
// reference itself. Tests use it to simulate tampered code.
func (s *MemoryStore) Replace(codeRef string, b []byte) {
	s.objects[codeRef] = b
}

// Resolve looks up the reference and hashes its bytes.
func (s *MemoryStore) Resolve(ctx context.Context, codeRef, contract string) ([]byte, string, error) {
	b, ok := s.objects[codeRef]
	if !ok {
		return nil, "", fmt.Errorf("unknown code ref %q", codeRef)
	}
	return b, HashBytes(b), nil
}
