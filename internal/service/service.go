// Package service wires the per-source pipelines together and exposes the
// single entry point the scheduler invokes.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"discounthub/harvester/internal/adapter"
	"discounthub/harvester/internal/domain"
	"discounthub/harvester/internal/extractor"
	"discounthub/harvester/internal/imagecache"
	"discounthub/harvester/internal/metrics"
	"discounthub/harvester/internal/normalizer"
	"discounthub/harvester/internal/publisher"
	"discounthub/harvester/internal/store"
)

// Service owns one pipeline per configured source. Sources share only the
// snapshot store and the image cache's on-disk namespace; extraction state
// is never shared.
type Service struct {
	adapters  []adapter.SourceAdapter
	cache     *imagecache.Cache
	snapshot  *store.Snapshot
	repo      store.ProductRepository // nil when no database is configured
	publisher *publisher.Publisher
	metrics   *metrics.Metrics
	stability int
}

// New builds the service. repo may be nil.
func New(
	adapters []adapter.SourceAdapter,
	cache *imagecache.Cache,
	snapshot *store.Snapshot,
	repo store.ProductRepository,
	pub *publisher.Publisher,
	m *metrics.Metrics,
	stability int,
) *Service {
	return &Service{
		adapters:  adapters,
		cache:     cache,
		snapshot:  snapshot,
		repo:      repo,
		publisher: pub,
		metrics:   m,
		stability: stability,
	}
}

// HarvestAll runs every source pipeline concurrently and waits for all of
// them. No single source, item, asset, or chunk failure ever aborts the
// run; failures surface only in the report, the logs and the counters.
func (s *Service) HarvestAll(ctx context.Context) *domain.Report {
	report := &domain.Report{StartedAt: time.Now()}

	var mu sync.Mutex
	g := new(errgroup.Group)

	for _, a := range s.adapters {
		a := a
		g.Go(func() error {
			sr := s.harvestSource(ctx, a)
			mu.Lock()
			report.Sources = append(report.Sources, sr)
			mu.Unlock()
			// Source failures are already recorded; returning them would
			// tear down sibling pipelines.
			return nil
		})
	}
	g.Wait()

	// One retry pass over chunks parked during this run.
	s.publisher.DrainRetries(ctx)

	report.FinishedAt = time.Now()
	log.Infof("Harvest finished: %d products across %d sources in %s",
		report.TotalKept(), len(report.Sources), report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	return report
}

// harvestSource runs one full Extractor -> Normalizer -> {Cache, Store,
// Publisher} pass for a single source.
func (s *Service) harvestSource(ctx context.Context, a adapter.SourceAdapter) domain.SourceReport {
	source := a.Name()
	started := time.Now()
	sr := domain.SourceReport{Source: source}

	log.Infof("%s: harvest started", source)

	ext := extractor.New(a, s.stability, s.metrics)
	raw, err := ext.Collect(ctx)
	if err != nil {
		sr.Err = err.Error()
		sr.PartialHarvest = len(raw) > 0
		log.Errorf("%s: collection failed after %d items: %v", source, len(raw), err)
	}
	sr.Extracted = len(raw)

	batch := s.normalize(ctx, a, raw)
	sr.Kept = len(batch)
	sr.Dropped = sr.Extracted - sr.Kept
	s.metrics.ProductsKept.WithLabelValues(source).Add(float64(len(batch)))

	// A failed collection keeps the prior snapshot partition: replacing a
	// source's records with the fallout of a navigation timeout would
	// erase good data. A clean harvest always merges, even when empty.
	if err != nil && len(batch) == 0 {
		sr.MergeSkipped = true
		sr.Duration = time.Since(started)
		return sr
	}

	if err := s.snapshot.Merge(source, batch); err != nil {
		sr.Err = err.Error()
		sr.Duration = time.Since(started)
		log.Errorf("%s: snapshot merge failed: %v", source, err)
		return sr
	}
	s.metrics.MergesTotal.WithLabelValues(source).Inc()

	if s.repo != nil {
		if err := s.repo.ReplaceSource(ctx, source, batch); err != nil {
			// The mirror is secondary; the snapshot already holds the batch.
			log.Errorf("%s: database mirror failed: %v", source, err)
		}
	}

	res := s.publisher.Publish(ctx, source, batch)
	sr.ChunksSent = res.ChunksSent
	sr.ChunksFailed = res.ChunksFailed

	sr.Duration = time.Since(started)
	log.Infof("%s: harvest done, kept %d of %d items in %s",
		source, sr.Kept, sr.Extracted, sr.Duration.Round(time.Second))
	return sr
}

// normalize converts raw items into canonical Products, resolving images as
// it goes. Items that fail normalization are dropped and counted; an image
// failure only leaves the product without an image.
func (s *Service) normalize(ctx context.Context, a adapter.SourceAdapter, raw []domain.RawItem) []domain.Product {
	source := a.Name()
	norm := normalizer.New(source, a.BaseURL())
	sourceDir := assetDir(source)
	now := time.Now()

	batch := make([]domain.Product, 0, len(raw))
	for _, item := range raw {
		product, ok := norm.Normalize(item, now)
		if !ok {
			s.metrics.ItemsDropped.WithLabelValues(source, "not_normalizable").Inc()
			continue
		}

		imageURL := normalizer.ResolveURL(a.BaseURL(), item.ImageURL)
		product.Image = s.cache.Resolve(ctx, sourceDir, product.Name, imageURL)

		batch = append(batch, product)
	}
	return batch
}

// assetDir derives the per-source directory name in the asset namespace.
// Identities, never raw titles, become filenames; this only has to be a
// path-safe variant of the source name.
func assetDir(source string) string {
	dir := normalizer.Slugify(source)
	if dir == "" {
		dir = strings.ToLower(source)
	}
	return dir
}
