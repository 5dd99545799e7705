package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is fully processed and its offset may be committed.
// A failing message is retried in place a few times. If it still fails its
// offset is not committed, but a later commit in the same partition moves past
// it, so handlers must leave a durable trail (the reward ledger reconciles from
// order history) rather than rely on redelivery.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

type Consumer struct {
	r        *kafka.Reader
	workers  int
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		log:      log.With(zap.String("topic", topic), zap.String("group", group)),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// handle runs h until it succeeds, attempts run out or ctx ends. The wait
// grows linearly with each attempt.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		c.logger().Warn("handler failed, retrying",
			zap.Int("attempt", i), zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition), zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(c.backoff * time.Duration(i)):
		}
	}
	return err
}

func (c *Consumer) logger() *zap.Logger {
	if c.log == nil {
		return zap.NewNop()
	}
	return c.log
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := func(err error) {
				select {
				case errs <- err:
				default:
					c.log.Warn("worker error", zap.Error(err))
				}
			}
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					c.log.Error("message dropped after retries",
						zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition), zap.Error(err))
					report(err)
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					report(err)
				}
			}
		}()
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}

		// drain without blocking so a slow error reader never stalls dispatch
		select {
		case e := <-errs:
			c.log.Warn("worker error", zap.Error(e))
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}
