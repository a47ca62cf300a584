package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tcl-go/internal/ledger"
)

// FileSystemVault is a filesystem-based implementation of the Vault
// interface. Artifacts are sharded by the first two hex characters of their
// checksum to keep directories small:
//
//	<root>/
//	  artifacts/
//	    ab/
//	      abcdef...     (artifact files, named by SHA-256)
type FileSystemVault struct {
	name        string
	root        string
	artifactDir string
}

var _ ledger.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	artifactDir := filepath.Join(root, "artifacts")
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &FileSystemVault{
		name:        name,
		root:        root,
		artifactDir: artifactDir,
	}, nil
}

func (v *FileSystemVault) artifactPath(checksum string) string {
	shard := "00"
	if len(checksum) >= 2 {
		shard = checksum[:2]
	}
	return filepath.Join(v.artifactDir, shard, checksum)
}

// PutArtifact stores an artifact under its checksum.
// The operation is idempotent: storing the same checksum twice is safe.
func (v *FileSystemVault) PutArtifact(checksum string, r io.Reader, size int64) error {
	destPath := v.artifactPath(checksum)

	// If the artifact already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn
	// artifact under its final name.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-"+checksum+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by checksum and writes it to w.
func (v *FileSystemVault) GetArtifact(checksum string, w io.Writer) error {
	f, err := os.Open(v.artifactPath(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact not found: %s", checksum)
		}
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	info, err = os.Stat(v.artifactDir)
	if err != nil {
		return fmt.Errorf("artifact directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact path is not a directory: %s", v.artifactDir)
	}
	return nil
}
