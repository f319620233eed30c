// Package store persists the shared catalog: a single flat JSON snapshot,
// optionally mirrored to Postgres.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"discounthub/harvester/internal/domain"
)

// Snapshot is the one persisted document holding the union of the latest
// batch per source. Merges are a single read-modify-write serialized through
// the store mutex: a merge filters only its own source's old entries and can
// never clobber records another pipeline just wrote.
type Snapshot struct {
	path string
	mu   sync.Mutex
}

// NewSnapshot returns a store writing to path. The file is created on the
// first merge.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Load reads the current snapshot. A missing or undecodable file is an empty
// snapshot, not an error: the first successful merge re-establishes a valid
// document.
func (s *Snapshot) Load() []domain.Product {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("Failed to read snapshot %s: %v", s.path, err)
		}
		return nil
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		log.Warnf("Snapshot %s is corrupt, starting fresh: %v", s.path, err)
		return nil
	}
	return products
}

// Merge replaces every record belonging to source with batch, preserving
// batch order, and rewrites the snapshot atomically. It never patches
// individual records: the newest harvest fully supersedes the prior one.
func (s *Snapshot) Merge(source string, batch []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.Load()
	merged := make([]domain.Product, 0, len(existing)+len(batch))
	for _, p := range existing {
		if p.Source != source {
			merged = append(merged, p)
		}
	}
	merged = append(merged, batch...)

	if err := s.write(merged); err != nil {
		return fmt.Errorf("merge %s: %w", source, err)
	}

	log.Infof("Merged %d %s items into snapshot, %d total", len(batch), source, len(merged))
	return nil
}

// write rewrites the document wholesale via temp file + rename so readers
// never observe a partial write.
func (s *Snapshot) write(products []domain.Product) error {
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
