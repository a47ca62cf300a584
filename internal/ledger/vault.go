package ledger

import "io"

// Vault provides an interface for backup-artifact storage backends.
// Artifacts are content-addressed by the SHA-256 checksum of the compressed
// bytes. All operations stream through io.Reader/io.Writer so large ledgers
// never have to fit in memory.
type Vault interface {
	// PutArtifact stores an artifact under its checksum.
	// The operation is idempotent: storing the same checksum twice is safe.
	// size is the number of bytes that will be read from r.
	PutArtifact(checksum string, r io.Reader, size int64) error

	// GetArtifact retrieves an artifact by checksum and writes it to w.
	GetArtifact(checksum string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible and configured.
	ValidateSetup() error
}
