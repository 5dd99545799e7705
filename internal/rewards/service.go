// Package rewards keeps the per-user draw-chance ledger and runs random box draws.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/ariefcatur/go-gift-mall/internal/inventory"
	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultChanceUnit       int64 = 10000
	DefaultDrawPriceCeiling int64 = 10000
)

var (
	ErrInsufficientChances = errors.New("no draw chances left")
	ErrNoEligibleInventory = errors.New("no eligible product to draw")
	ErrInvalidCount        = errors.New("count must be at least 1")
	ErrNegativeTotal       = errors.New("lifetime total must not be negative")
)

// ChanceCache is implemented by redisx.ChanceCache. Set must not replace an
// entry whose UpdatedAt is newer than l's.
type ChanceCache interface {
	Get(ctx context.Context, email string) (store.RewardLedger, bool)
	Set(ctx context.Context, l store.RewardLedger) error
	Invalidate(ctx context.Context, email string) error
}

type DrawResult struct {
	Product   store.Product         `json:"product"`
	Entry     store.CollectionEntry `json:"entry"`
	Remaining int64                 `json:"remaining"`
}

type Service struct {
	Store            store.Store
	Cache            ChanceCache
	Events           Publisher
	Log              *zap.Logger
	Tracer           trace.Tracer
	ChanceUnit       int64
	DrawPriceCeiling int64
	// Pick returns an index in [0, n). Defaults to a uniform random pick.
	Pick func(n int) int
}

func (s *Service) log() *zap.Logger { return observability.Logger(s.Log) }

func (s *Service) unit() int64 {
	if s.ChanceUnit > 0 {
		return s.ChanceUnit
	}
	return DefaultChanceUnit
}

func (s *Service) ceiling() int64 {
	if s.DrawPriceCeiling > 0 {
		return s.DrawPriceCeiling
	}
	return DefaultDrawPriceCeiling
}

func (s *Service) pick(n int) int {
	if s.Pick != nil {
		return s.Pick(n)
	}
	return rand.Intn(n)
}

// Accrue tops the ledger up so that granted equals lifetime/unit. Chances are
// never taken back, so a shrinking lifetime grants nothing.
func Accrue(ctx context.Context, ls store.LedgerStore, email string, lifetime, unit int64) (int64, store.RewardLedger, error) {
	if lifetime < 0 {
		return 0, store.RewardLedger{}, fmt.Errorf("%w: %d", ErrNegativeTotal, lifetime)
	}
	l, err := ls.LockLedger(ctx, email)
	if err != nil {
		return 0, store.RewardLedger{}, fmt.Errorf("lock ledger: %w", err)
	}
	delta := lifetime/unit - l.Granted
	if delta <= 0 {
		return 0, l, nil
	}
	if l, err = ls.AddChances(ctx, email, delta); err != nil {
		return 0, store.RewardLedger{}, fmt.Errorf("add chances: %w", err)
	}
	return delta, l, nil
}

// Reconcile re-derives the user's chances from lifetime spend. Running it any
// number of times for the same spend grants each chance exactly once.
func (s *Service) Reconcile(ctx context.Context, email string) (int64, error) {
	ctx, span := observability.Tracer(s.Tracer).Start(ctx, "rewards.Reconcile")
	defer span.End()

	var (
		granted int64
		ledger  store.RewardLedger
	)
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		// lock first so concurrent reconciles for one user serialize
		if _, err := tx.LockLedger(ctx, email); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}
		lifetime, err := tx.LifetimeTotal(ctx, email)
		if err != nil {
			return fmt.Errorf("lifetime total: %w", err)
		}
		granted, ledger, err = Accrue(ctx, tx, email, lifetime, s.unit())
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int64("rewards.granted", granted))
	if granted > 0 {
		s.changed(ctx, ledger)
		s.log().Info("chances granted", zap.String("email", email), zap.Int64("granted", granted), zap.Int64("remaining", ledger.Remaining))
		s.publish(ctx, TopicChancesGranted, EventChancesGranted, email,
			ChancesGrantedPayload{OwnerEmail: email, Granted: granted, Remaining: ledger.Remaining, Reason: "purchase"})
	}
	return granted, nil
}

// Draw spends one chance and moves one eligible product into the user's
// collection. Nothing is committed when the pool is empty, so the chance stays.
func (s *Service) Draw(ctx context.Context, email string) (DrawResult, error) {
	ctx, span := observability.Tracer(s.Tracer).Start(ctx, "rewards.Draw")
	defer span.End()

	var (
		res    DrawResult
		ledger store.RewardLedger
	)
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		l, ok, err := tx.TakeChance(ctx, email)
		if err != nil {
			return fmt.Errorf("take chance: %w", err)
		}
		if !ok {
			return ErrInsufficientChances
		}
		candidates, err := tx.LockDrawCandidates(ctx, s.ceiling())
		if err != nil {
			return fmt.Errorf("draw candidates: %w", err)
		}
		if len(candidates) == 0 {
			return ErrNoEligibleInventory
		}
		p := candidates[s.pick(len(candidates))]

		entry, _, err := collection.Enroll(ctx, tx, collection.FromProduct(email, p, store.SourceRandomBox))
		if err != nil {
			return err
		}
		if _, err := inventory.Hide(ctx, tx, []string{p.ID}); err != nil {
			return err
		}
		res, ledger = DrawResult{Product: p, Entry: entry, Remaining: l.Remaining}, l
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return DrawResult{}, err
	}
	span.SetAttributes(attribute.String("rewards.product_id", res.Product.ID))

	s.changed(ctx, ledger)
	s.log().Info("reward drawn", zap.String("email", email), zap.String("product_id", res.Product.ID), zap.Int64("remaining", res.Remaining))
	s.publish(ctx, TopicRewardDrawn, EventRewardDrawn, email,
		RewardDrawnPayload{OwnerEmail: email, ProductID: res.Product.ID, EntryID: res.Entry.ID, Remaining: res.Remaining})
	return res, nil
}

// GetChances returns the ledger, creating an empty one on first access.
func (s *Service) GetChances(ctx context.Context, email string) (store.RewardLedger, error) {
	if s.Cache != nil {
		if l, ok := s.Cache.Get(ctx, email); ok {
			return l, nil
		}
	}
	var l store.RewardLedger
	err := s.Store.InTx(ctx, func(tx store.Tx) (err error) {
		l, err = tx.GetOrCreateLedger(ctx, email)
		return err
	})
	if err != nil {
		return store.RewardLedger{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, l); err != nil {
			s.log().Warn("cache chances", zap.String("email", email), zap.Error(err))
		}
	}
	return l, nil
}

type Progress struct {
	LifetimeTotal int64 `json:"lifetime_total"`
	ToNextChance  int64 `json:"to_next_chance"`
}

// AmountToNextChance reports how much more spend earns the next chance.
func (s *Service) AmountToNextChance(ctx context.Context, email string) (Progress, error) {
	var lifetime int64
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		lifetime, err = tx.LifetimeTotal(ctx, email)
		return err
	})
	if err != nil {
		return Progress{}, err
	}
	unit := s.unit()
	return Progress{LifetimeTotal: lifetime, ToNextChance: unit - lifetime%unit}, nil
}

// AddManualChances grants chances outside the purchase flow (admin use).
func (s *Service) AddManualChances(ctx context.Context, email string, count int64) (store.RewardLedger, error) {
	if count < 1 {
		return store.RewardLedger{}, ErrInvalidCount
	}
	var l store.RewardLedger
	err := s.Store.InTx(ctx, func(tx store.Tx) (err error) {
		l, err = tx.AddChances(ctx, email, count)
		return err
	})
	if err != nil {
		return store.RewardLedger{}, err
	}
	s.changed(ctx, l)
	s.log().Info("manual chances granted", zap.String("email", email), zap.Int64("count", count))
	s.publish(ctx, TopicChancesGranted, EventChancesGranted, email,
		ChancesGrantedPayload{OwnerEmail: email, Granted: count, Remaining: l.Remaining, Reason: "manual"})
	return l, nil
}

// UseChance spends one chance without drawing.
func (s *Service) UseChance(ctx context.Context, email string) (store.RewardLedger, error) {
	var l store.RewardLedger
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var (
			ok  bool
			err error
		)
		l, ok, err = tx.TakeChance(ctx, email)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientChances
		}
		return nil
	})
	if err != nil {
		return store.RewardLedger{}, err
	}
	s.changed(ctx, l)
	return l, nil
}

// changed pushes a freshly committed ledger into the cache. The cache keeps
// whichever ledger has the newest UpdatedAt, so a slower reader cannot put an
// older copy back. When the write fails the entry is dropped instead.
func (s *Service) changed(ctx context.Context, l store.RewardLedger) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, l); err == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, l.OwnerEmail); err != nil {
		s.log().Warn("invalidate chances cache", zap.String("email", l.OwnerEmail), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic, eventType, key string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, topic, eventType, key, payload); err != nil {
		s.log().Warn("publish event", zap.String("event_type", eventType), zap.String("key", key), zap.Error(err))
	}
}
