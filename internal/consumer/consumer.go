package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/metrics"
)

// Queue is the receive side of the message queue.
type Queue interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]domain.Delivery, error)
	Ack(d domain.Delivery) error
	Reject(d domain.Delivery) error
}

// Processor handles a single queue message.
type Processor interface {
	Process(ctx context.Context, msg domain.QueueMessage) error
}

type Config struct {
	MaxBatch        int
	PollWait        time.Duration
	IdleDelay       time.Duration
	ErrorDelay      time.Duration
	MaxConcurrency  int
	MaxReceiveCount int
}

// Consumer polls the queue in batches and fans each delivery out to a bounded
// worker pool. One message failing never blocks the rest of its batch.
type Consumer struct {
	queue     Queue
	processor Processor
	cfg       Config
	pool      *ants.Pool
	logger    *slog.Logger
}

func New(queue Queue, processor Processor, cfg Config, logger *slog.Logger) (*Consumer, error) {
	pool, err := ants.NewPool(cfg.MaxConcurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Consumer{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Run polls until ctx is cancelled. In-flight messages are allowed to finish
// before Run returns, so a delivery is never abandoned half-processed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started",
		"max_batch", c.cfg.MaxBatch,
		"max_concurrency", c.cfg.MaxConcurrency,
	)

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		c.pool.Release()
		c.logger.Info("consumer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.queue.Receive(ctx, c.cfg.MaxBatch, c.cfg.PollWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.dispatch(ctx, &wg, deliveries)
				return ctx.Err()
			}
			c.logger.Error("receive failed", "error", err)
			if !sleep(ctx, c.cfg.ErrorDelay) {
				return ctx.Err()
			}
			continue
		}

		if len(deliveries) == 0 {
			if !sleep(ctx, c.cfg.IdleDelay) {
				return ctx.Err()
			}
			continue
		}

		c.dispatch(ctx, &wg, deliveries)
	}
}

func (c *Consumer) dispatch(ctx context.Context, wg *sync.WaitGroup, deliveries []domain.Delivery) {
	for _, d := range deliveries {
		d := d
		wg.Add(1)
		if err := c.pool.Submit(func() {
			defer wg.Done()
			c.handle(ctx, d)
		}); err != nil {
			wg.Done()
			c.logger.Error("submit to pool failed", "message_id", d.Message.ID, "error", err)
			if rerr := c.queue.Reject(d); rerr != nil {
				c.logger.Error("reject failed", "message_id", d.Message.ID, "error", rerr)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d domain.Delivery) {
	// Shutdown must not abort a message mid-flight; only new receives stop.
	procCtx := context.WithoutCancel(ctx)

	err := c.processor.Process(procCtx, d.Message)
	if err == nil {
		if aerr := c.queue.Ack(d); aerr != nil {
			c.logger.Error("ack failed", "message_id", d.Message.ID, "error", aerr)
			return
		}
		metrics.MessagesProcessed.WithLabelValues("completed").Inc()
		return
	}

	if d.DeliveryCount >= c.cfg.MaxReceiveCount {
		// Retry budget exhausted. Acknowledge anyway so the message drains
		// instead of cycling forever; the ledger keeps the failure record
		// and the raw envelope stays replayable.
		c.logger.Error("message exhausted retries, draining",
			"message_id", d.Message.ID,
			"delivery_count", d.DeliveryCount,
			"error", err,
		)
		if aerr := c.queue.Ack(d); aerr != nil {
			c.logger.Error("ack failed", "message_id", d.Message.ID, "error", aerr)
			return
		}
		metrics.MessagesProcessed.WithLabelValues("dropped").Inc()
		return
	}

	c.logger.Warn("processing failed, leaving for redelivery",
		"message_id", d.Message.ID,
		"delivery_count", d.DeliveryCount,
		"error", err,
	)
	if rerr := c.queue.Reject(d); rerr != nil {
		c.logger.Error("reject failed", "message_id", d.Message.ID, "error", rerr)
		return
	}
	metrics.MessagesProcessed.WithLabelValues("retried").Inc()
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
