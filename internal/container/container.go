package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"discounthub/harvester/internal/adapter"
	"discounthub/harvester/internal/config"
	"discounthub/harvester/internal/imagecache"
	"discounthub/harvester/internal/metrics"
	"discounthub/harvester/internal/publisher"
	"discounthub/harvester/internal/queue"
	"discounthub/harvester/internal/service"
	"discounthub/harvester/internal/store"
)

// Container holds all initialized components
type Container struct {
	Config  *config.Config
	Service *service.Service
	Metrics *metrics.Metrics

	db            *pgxpool.Pool
	redis         *redis.Client
	metricsServer *http.Server
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	m := metrics.New()
	c.Metrics = m

	timeout := time.Duration(cfg.Harvester.Timeout) * time.Second
	debugDir := filepath.Join(cfg.Harvester.DataDir, "debug")

	adapters := make([]adapter.SourceAdapter, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		switch src.Kind {
		case "dom":
			adapters = append(adapters, adapter.NewDOMAdapter(src, timeout, cfg.Harvester.ScrollStability, debugDir))
		case "api", "session":
			adapters = append(adapters, adapter.NewAPIAdapter(src, timeout, debugDir))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
		}
	}

	cache, err := imagecache.New(
		cfg.Harvester.ImagesDir,
		time.Duration(cfg.Harvester.ImageTimeout)*time.Second,
		cfg.Harvester.MaxImageRetries,
		m,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image cache: %w", err)
	}

	snapshot := store.NewSnapshot(cfg.Harvester.SnapshotFile)

	var repo store.ProductRepository
	if cfg.Database.Enabled() {
		db, err := pgxpool.New(context.Background(),
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Database.Host,
				cfg.Database.Port,
				cfg.Database.User,
				cfg.Database.Password,
				cfg.Database.Name,
			))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		c.db = db
		repo = store.NewProductRepository(db)
		log.Info("Postgres mirror enabled")
	}

	var retryQueue queue.Queue
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		q, err := queue.NewRedisQueue(rdb, cfg.Redis.ConsumerGroup)
		if err != nil {
			return nil, err
		}
		c.redis = rdb
		retryQueue = q
		log.Info("Publish retry queue enabled")
	}

	pub := publisher.New(cfg.Harvester.APIEndpoint, cfg.Harvester.ChunkSize, timeout, retryQueue, m)

	c.Service = service.New(adapters, cache, snapshot, repo, pub, m, cfg.Harvester.ScrollStability)

	if cfg.Metrics.Addr != "" {
		c.metricsServer = &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := c.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
		log.Infof("Metrics exposed on %s", cfg.Metrics.Addr)
	}

	return c, nil
}

// Run harvests all sources once, then keeps harvesting on the configured
// interval until the context is cancelled.
func (c *Container) Run(ctx context.Context) error {
	c.runOnce(ctx)

	interval := time.Duration(c.Config.Harvester.IntervalHours) * time.Hour
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Container) runOnce(ctx context.Context) {
	report := c.Service.HarvestAll(ctx)
	for _, sr := range report.Sources {
		if sr.Err != "" {
			log.Warnf("%s: %d kept, error: %s", sr.Source, sr.Kept, sr.Err)
			continue
		}
		log.Infof("%s: %d kept, %d dropped, %d/%d chunks delivered",
			sr.Source, sr.Kept, sr.Dropped, sr.ChunksSent, sr.ChunksSent+sr.ChunksFailed)
	}
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Metrics server shutdown failed: %v", err)
		}
		cancel()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}

	log.Info("Container shut down successfully")
	return nil
}
