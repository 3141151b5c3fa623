// Package blob provides content-addressed, append-only storage of raw
// fetched bytes on the filesystem, keyed by SHA-256. Identical content
// is stored once; pruning decisions live in the cache ledger, which
// knows which hashes are still referenced.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes and removes blob files under a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. Call EnsureDir before the
// first Put.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the backing directory idempotently.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	return nil
}

// SHA256Hex returns the hex digest used as a blob's content address.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PathFor returns the file path for a content hash.
func (s *Store) PathFor(hash string) string {
	return filepath.Join(s.dir, hash+".bin")
}

// PutResult reports the outcome of a Put.
type PutResult struct {
	Hash    string
	Path    string
	Written bool
}

// Put stores bytes under their content hash. If no file exists at the
// hash-derived path it is written atomically (unique temp file, then
// rename) and Written is true. An existing file is never touched:
// first writer wins.
func (s *Store) Put(data []byte) (PutResult, error) {
	hash := SHA256Hex(data)
	path := s.PathFor(hash)

	if _, err := os.Stat(path); err == nil {
		return PutResult{Hash: hash, Path: path, Written: false}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return PutResult{}, fmt.Errorf("checking blob %s: %w", hash, err)
	}

	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return PutResult{}, fmt.Errorf("writing blob %s: %w", hash, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return PutResult{}, fmt.Errorf("publishing blob %s: %w", hash, err)
	}

	return PutResult{Hash: hash, Path: path, Written: true}, nil
}

// Read returns the stored bytes for a hash.
func (s *Store) Read(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.PathFor(hash))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	return data, nil
}

// Remove deletes a blob file best-effort: a missing file is success.
func (s *Store) Remove(hash string) error {
	if err := os.Remove(s.PathFor(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", hash, err)
	}
	return nil
}
