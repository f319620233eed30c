// Package metrics bundles the Prometheus counters the pipeline reports
// through. Failures in this system are observable only via logs and these
// counters, so every drop and failure path increments something here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	ItemsExtracted *prometheus.CounterVec
	ItemsDropped   *prometheus.CounterVec
	ProductsKept   *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec

	ImagesDownloaded prometheus.Counter
	ImageCacheHits   prometheus.Counter
	ImageFailures    prometheus.Counter

	ChunksSent   prometheus.Counter
	ChunksFailed prometheus.Counter
	MergesTotal  *prometheus.CounterVec
}

// New constructs and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		ItemsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_items_extracted_total",
			Help: "Unique raw items collected per source.",
		}, []string{"source"}),
		ItemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_items_dropped_total",
			Help: "Items dropped during extraction or normalization.",
		}, []string{"source", "reason"}),
		ProductsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_products_kept_total",
			Help: "Canonical products retained per source.",
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_source_failures_total",
			Help: "Source-level harvest failures.",
		}, []string{"source"}),
		ImagesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_images_downloaded_total",
			Help: "Images fetched and written to the asset namespace.",
		}),
		ImageCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_image_cache_hits_total",
			Help: "Image resolutions satisfied without a network call.",
		}),
		ImageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_image_failures_total",
			Help: "Image downloads that gave up after retries.",
		}),
		ChunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_publish_chunks_sent_total",
			Help: "Publish chunks accepted by the remote API.",
		}),
		ChunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_publish_chunks_failed_total",
			Help: "Publish chunks that failed transport or returned non-200.",
		}),
		MergesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_snapshot_merges_total",
			Help: "Snapshot merges applied per source.",
		}, []string{"source"}),
	}

	registry.MustRegister(
		m.ItemsExtracted,
		m.ItemsDropped,
		m.ProductsKept,
		m.SourceFailures,
		m.ImagesDownloaded,
		m.ImageCacheHits,
		m.ImageFailures,
		m.ChunksSent,
		m.ChunksFailed,
		m.MergesTotal,
	)
	return m
}
