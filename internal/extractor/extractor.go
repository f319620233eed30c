// Package extractor drives a source adapter's collection loop to exhaustion.
package extractor

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"discounthub/harvester/internal/adapter"
	"discounthub/harvester/internal/domain"
	"discounthub/harvester/internal/metrics"
	"discounthub/harvester/internal/normalizer"
)

// Extractor runs the COLLECTING -> STABLE_CHECK -> {COLLECTING | DONE} loop
// for one source. Within a harvest, items are deduplicated by title slug:
// the first occurrence wins and later duplicates from continued
// scrolling/pagination are discarded silently.
type Extractor struct {
	adapter   adapter.SourceAdapter
	stability int
	metrics   *metrics.Metrics
}

// New builds an extractor. stability is the number of consecutive reveal
// steps without seen-count growth after which a DOM source is considered
// fully harvested.
func New(a adapter.SourceAdapter, stability int, m *metrics.Metrics) *Extractor {
	if stability <= 0 {
		stability = 5
	}
	return &Extractor{adapter: a, stability: stability, metrics: m}
}

// Collect harvests the source until it is exhausted. On a source-level
// failure the items gathered so far are returned together with the error so
// the caller can decide what a partial harvest is worth; the error never
// carries past the per-source boundary.
func (e *Extractor) Collect(ctx context.Context) ([]domain.RawItem, error) {
	source := e.adapter.Name()

	sess, err := e.adapter.Open(ctx)
	if err != nil {
		e.metrics.SourceFailures.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warnf("%s: closing session: %v", source, cerr)
		}
	}()

	var (
		items  []domain.RawItem
		seen   = make(map[string]struct{})
		state  = adapter.PageState{Page: 1}
		reveal = e.adapter.RevealDriven()
		quiet  = 0
		steps  = 0
	)

	for {
		if ctx.Err() != nil {
			return items, fmt.Errorf("collection cancelled: %w", ctx.Err())
		}

		raw, hasMore, err := e.adapter.CollectPage(ctx, sess, state)
		if err != nil {
			e.metrics.SourceFailures.WithLabelValues(source).Inc()
			return items, fmt.Errorf("collect page %d: %w", state.Page, err)
		}
		steps++

		fresh := 0
		for _, it := range raw {
			key := normalizer.Slugify(it.Title)
			if key == "" {
				e.metrics.ItemsDropped.WithLabelValues(source, "empty_title").Inc()
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, it)
			fresh++
		}
		e.metrics.ItemsExtracted.WithLabelValues(source).Add(float64(fresh))

		if !hasMore {
			// Empty page / exhausted listings: authoritative end.
			break
		}

		// The quiet-stability cutoff bounds reveal-driven collection only.
		// A paginated source may serve many duplicate-only pages (the same
		// promo across categories) before genuinely new ones; it ends on
		// the empty page alone.
		if reveal {
			if fresh == 0 {
				quiet++
				if quiet >= e.stability {
					log.Debugf("%s: no growth for %d reveal steps, collection stable", source, quiet)
					break
				}
			} else {
				quiet = 0
			}
		}

		state = adapter.PageState{Page: state.Page + 1, NewlySeen: fresh}
	}

	log.Infof("%s: collected %d unique items over %d steps", source, len(items), steps)
	return items, nil
}
