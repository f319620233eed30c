// Package adapter contains the per-site connectors. Everything site-specific
// (selectors, endpoints, cookie capture) stays behind the SourceAdapter
// contract; the extractor only ever sees raw items and a hasMore signal.
package adapter

import (
	"context"
	"os"
	"path/filepath"

	"discounthub/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// PageState is the extractor-owned cursor passed into each collection step.
// Page is the 1-based step number. NewlySeen reports how many previously
// unseen items the prior step produced; DOM adapters use it to decide when a
// listing has stopped revealing and the next one should be opened.
type PageState struct {
	Page      int
	NewlySeen int
}

// Session is a scoped resource owned by one source pipeline for the duration
// of a single harvest. It is acquired by Open and must be released on every
// exit path.
type Session interface {
	Close() error
}

// SourceAdapter is the boundary the extractor drives to exhaustion.
//
// DOM adapters express hasMore through the incremental-reveal model: they
// keep returning the currently rendered item set until every listing is
// exhausted. API adapters return hasMore=false the first time a requested
// page comes back empty; an empty page is authoritative.
type SourceAdapter interface {
	Name() string
	BaseURL() string
	// RevealDriven reports whether collection advances by incremental
	// reveal, where only the seen-count stability heuristic bounds the
	// loop. Paginated sources return false: they terminate solely on the
	// empty page, however many duplicate-only pages precede it.
	RevealDriven() bool
	Open(ctx context.Context) (Session, error)
	CollectPage(ctx context.Context, sess Session, state PageState) (items []domain.RawItem, hasMore bool, err error)
}

// dumpDiagnostics writes a raw payload next to the data dir so a failed or
// empty harvest can be inspected afterwards.
func dumpDiagnostics(debugDir, source, tag string, payload []byte) {
	if debugDir == "" || len(payload) == 0 {
		return
	}
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		log.Warnf("Failed to create debug dir %s: %v", debugDir, err)
		return
	}
	path := filepath.Join(debugDir, "debug_"+source+"_"+tag+".html")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		log.Warnf("Failed to write diagnostic %s: %v", path, err)
		return
	}
	log.Infof("Saved diagnostic payload to %s", path)
}
