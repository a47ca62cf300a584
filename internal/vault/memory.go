package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"tcl-go/internal/ledger"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all artifacts in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name      string
	artifacts map[string][]byte // checksum -> artifact bytes
	mu        sync.RWMutex
}

var _ ledger.Vault = (*MemoryVault)(nil)

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		artifacts: make(map[string][]byte),
	}
}

// PutArtifact stores an artifact under its checksum.
func (m *MemoryVault) PutArtifact(checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.artifacts[checksum] = data
	return nil
}

// GetArtifact retrieves an artifact by checksum.
func (m *MemoryVault) GetArtifact(checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.artifacts[checksum]
	if !ok {
		return fmt.Errorf("artifact not found: %s", checksum)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Corrupt flips one byte of a stored artifact. Only used by tests that
// exercise backup verification failure paths.
func (m *MemoryVault) Corrupt(checksum string, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.artifacts[checksum]
	if !ok {
		return fmt.Errorf("artifact not found: %s", checksum)
	}
	if offset < 0 || offset >= len(data) {
		return fmt.Errorf("offset %d out of range (artifact is %d bytes)", offset, len(data))
	}
	data[offset] ^= 0xFF
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}
