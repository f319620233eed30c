// Package publisher pushes freshly harvested batches to the remote catalog
// API in bounded-size chunks.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"discounthub/harvester/internal/domain"
	"discounthub/harvester/internal/domain/task"
	"discounthub/harvester/internal/metrics"
	"discounthub/harvester/internal/queue"
)

// Result summarizes one publish call.
type Result struct {
	ChunksSent   int
	ChunksFailed int
}

// Publisher sends batches to POST {endpoint}/discounts. Each chunk is an
// independent request: a failed chunk is logged, counted, optionally parked
// on the retry queue, and never aborts the remaining chunks. Delivery is
// at-least-once; the receiving side applies the same replace-by-source
// semantics, so duplicates are harmless.
type Publisher struct {
	endpoint  string
	chunkSize int
	client    *resty.Client
	retry     queue.Queue // nil when Redis is not configured
	metrics   *metrics.Metrics
}

// New builds a publisher. retry may be nil.
func New(endpoint string, chunkSize int, timeout time.Duration, retry queue.Queue, m *metrics.Metrics) *Publisher {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &Publisher{
		endpoint:  endpoint,
		chunkSize: chunkSize,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		retry:   retry,
		metrics: m,
	}
}

// Publish sends the batch in chunks. There is no cross-chunk transaction:
// partial delivery is a tolerated outcome, surfaced via the Result and the
// counters.
func (p *Publisher) Publish(ctx context.Context, source string, batch []domain.Product) Result {
	var res Result
	for start := 0; start < len(batch); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		chunkNo := start/p.chunkSize + 1

		if err := p.postChunk(ctx, chunk); err != nil {
			res.ChunksFailed++
			p.metrics.ChunksFailed.Inc()
			log.Errorf("%s: chunk %d (%d records) failed: %v", source, chunkNo, len(chunk), err)
			p.park(ctx, source, chunk, err)
			continue
		}

		res.ChunksSent++
		p.metrics.ChunksSent.Inc()
		log.Debugf("%s: chunk %d (%d records) posted", source, chunkNo, len(chunk))
	}
	return res
}

// postChunk sends one chunk; anything but HTTP 200 is a failure.
func (p *Publisher) postChunk(ctx context.Context, chunk []domain.Product) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(chunk).
		Post(p.endpoint + "/discounts")
	if err != nil {
		return fmt.Errorf("post chunk: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP %d %s", resp.StatusCode(), resp.Status())
	}
	return nil
}

// park drops a failed chunk on the retry stream when one is configured.
func (p *Publisher) park(ctx context.Context, source string, chunk []domain.Product, cause error) {
	if p.retry == nil {
		return
	}
	t := &task.PublishRetryTask{
		Source: source,
		Chunk:  chunk,
		Error:  cause.Error(),
	}
	if _, err := p.retry.AddTask(ctx, t); err != nil {
		log.Errorf("%s: failed to park chunk on retry stream: %v", source, err)
	}
}

// DrainRetries re-posts every parked chunk once. Chunks that fail again are
// acknowledged anyway; the next run's fresh harvest supersedes them.
func (p *Publisher) DrainRetries(ctx context.Context) {
	if p.retry == nil {
		return
	}

	consumer := fmt.Sprintf("publisher-%d", time.Now().UnixNano())
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := p.retry.GetTask(ctx, consumer)
		if err != nil {
			log.Errorf("Failed to read retry stream: %v", err)
			return
		}
		if msg == nil {
			return
		}
		p.handleRetry(ctx, msg)
	}
}

func (p *Publisher) handleRetry(ctx context.Context, msg *redis.XMessage) {
	defer func() {
		if err := p.retry.AckTask(ctx, msg.ID); err != nil {
			log.Errorf("Failed to ack retry message %s: %v", msg.ID, err)
		}
	}()

	data, ok := msg.Values["task_data"].(string)
	if !ok {
		log.Errorf("Invalid task data in retry message %s", msg.ID)
		return
	}
	t, err := task.UnmarshalTask[*task.PublishRetryTask]([]byte(data))
	if err != nil {
		log.Errorf("Failed to unmarshal retry message %s: %v", msg.ID, err)
		return
	}

	if err := p.postChunk(ctx, t.Chunk); err != nil {
		p.metrics.ChunksFailed.Inc()
		log.Warnf("%s: retried chunk failed again, giving up: %v", t.Source, err)
		return
	}
	p.metrics.ChunksSent.Inc()
	log.Infof("%s: recovered chunk of %d records on retry", t.Source, len(t.Chunk))
}
