package rewards

import (
	"context"

	kafkax "github.com/ariefcatur/go-gift-mall/internal/kafka"
	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Deduper is implemented by redisx.Dedup.
type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Worker consumes order.placed and reconciles the buyer's chances, covering
// accruals the order request could not finish.
type Worker struct {
	Rewards *Service
	Dedup   Deduper
	Log     *zap.Logger
}

func (w *Worker) HandleOrderPlaced(ctx context.Context, m kafka.Message) error {
	log := observability.Logger(w.Log).With(zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition))

	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		log.Warn("drop malformed event", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		log.Warn("drop malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if p.OwnerEmail == "" || p.PurchaseTotal <= 0 {
		return nil
	}

	if w.Dedup != nil {
		first, err := w.Dedup.First(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.Debug("duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	granted, err := w.Rewards.Reconcile(ctx, p.OwnerEmail)
	if err != nil {
		if w.Dedup != nil {
			_ = w.Dedup.Forget(ctx, env.EventID)
		}
		log.Error("reconcile chances", zap.String("order_id", p.OrderID), zap.Error(err))
		return err
	}
	log.Info("order reconciled",
		zap.String("order_id", p.OrderID), zap.String("trace_id", env.TraceID), zap.Int64("granted", granted))
	return nil
}
