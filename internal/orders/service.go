// Package orders implements order placement and everything it sets off:
// hiding purchased inventory, filling the buyer's collection and triggering
// reward accrual.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/ariefcatur/go-gift-mall/internal/inventory"
	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidReference   = errors.New("invalid reference")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrEmptyOrder         = errors.New("order has no lines")
	ErrPaymentNotVerified = errors.New("payment not verified")
)

// Accruer re-derives a user's reward chances from lifetime spend.
type Accruer interface {
	Reconcile(ctx context.Context, email string) (granted int64, err error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, receiptID string) (bool, error)
}

// ReceiptIndex caches receipt -> order id. Implemented by redisx.ReceiptIndex.
type ReceiptIndex interface {
	Lookup(ctx context.Context, receiptID string) (orderID string, ok bool)
	Remember(ctx context.Context, receiptID, orderID string) error
}

type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderInput struct {
	OwnerEmail string
	CouponCode string
	ReceiptID  string
	Lines      []LineInput
}

type Summary struct {
	OrderID        string            `json:"order_id"`
	OwnerEmail     string            `json:"owner_email"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	ReceiptID      string            `json:"receipt_id,omitempty"`
	OrderedAt      time.Time         `json:"ordered_at"`
	Lines          []store.OrderLine `json:"lines"`
	Total          int64             `json:"total"`
	ChancesGranted int64             `json:"chances_granted"`
	Existing       bool              `json:"existing"`
}

func summarize(o store.Order) Summary {
	return Summary{
		OrderID:    o.ID,
		OwnerEmail: o.OwnerEmail,
		CouponCode: o.CouponCode,
		ReceiptID:  o.ReceiptID,
		OrderedAt:  o.OrderedAt,
		Lines:      o.Lines,
		Total:      o.Total(),
	}
}

type Service struct {
	Store    store.Store
	Rewards  Accruer
	Payments PaymentVerifier
	Receipts ReceiptIndex
	Events   EventPublisher
	Log      *zap.Logger
	Tracer   trace.Tracer
}

func (s *Service) log() *zap.Logger { return observability.Logger(s.Log) }

func validate(in PlaceOrderInput) error {
	if strings.TrimSpace(in.OwnerEmail) == "" {
		return fmt.Errorf("%w: owner email is required", ErrInvalidReference)
	}
	if len(in.Lines) == 0 {
		return ErrEmptyOrder
	}
	for _, l := range in.Lines {
		if l.ProductID == "" {
			return fmt.Errorf("%w: line without product id", ErrInvalidReference)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: product %s has quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
	}
	return nil
}

// PlaceOrder persists the order, hides the purchased products and enrolls the
// lines into the buyer's collection in one transaction. Reward accrual runs
// after commit and never fails the order.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Summary, error) {
	ctx, span := observability.Tracer(s.Tracer).Start(ctx, "orders.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.lines", len(in.Lines)))

	if err := validate(in); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, err
	}

	if in.ReceiptID != "" {
		if sum, ok, err := s.existingByReceipt(ctx, in.OwnerEmail, in.ReceiptID); err != nil {
			return Summary{}, err
		} else if ok {
			return sum, nil
		}
	}

	var order store.Order
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		order = store.Order{
			OwnerEmail: in.OwnerEmail,
			CouponCode: in.CouponCode,
			ReceiptID:  in.ReceiptID,
			Lines:      make([]store.OrderLine, 0, len(in.Lines)),
		}
		for _, l := range in.Lines {
			p, err := tx.GetProduct(ctx, l.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: product %s", ErrInvalidReference, l.ProductID)
			}
			if err != nil {
				return err
			}
			order.Lines = append(order.Lines, store.OrderLine{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  l.Quantity,
				UnitPrice: p.Price,
				Image:     p.FirstImage(),
				Donation:  p.Donation,
			})
		}

		if err := tx.CreateOrder(ctx, &order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if _, err := inventory.Hide(ctx, tx, saleableIDs(order.Lines)); err != nil {
			return err
		}

		for _, l := range order.Lines {
			if l.Donation {
				continue
			}
			line := l
			err := tx.Savepoint(ctx, func(sp store.Tx) error {
				_, _, err := collection.Enroll(ctx, sp, collection.FromLine(order.OwnerEmail, line))
				return err
			})
			if err != nil {
				s.log().Error("collection enrollment failed",
					zap.String("order_id", order.ID), zap.String("product_id", line.ProductID), zap.Error(err))
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicateReceipt) && in.ReceiptID != "" {
		// lost a race with a concurrent placement of the same receipt
		if sum, ok, lookupErr := s.existingByReceipt(ctx, in.OwnerEmail, in.ReceiptID); lookupErr == nil && ok {
			return sum, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, err
	}

	sum := summarize(order)
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.total", sum.Total))
	s.log().Info("order placed",
		zap.String("order_id", order.ID), zap.String("email", order.OwnerEmail),
		zap.Int("lines", len(order.Lines)), zap.Int64("total", sum.Total))

	if in.ReceiptID != "" && s.Receipts != nil {
		if err := s.Receipts.Remember(ctx, in.ReceiptID, order.ID); err != nil {
			s.log().Warn("remember receipt", zap.String("receipt_id", in.ReceiptID), zap.Error(err))
		}
	}

	if order.PurchaseTotal() > 0 && s.Rewards != nil {
		granted, err := s.Rewards.Reconcile(ctx, order.OwnerEmail)
		if err != nil {
			s.log().Error("reward accrual failed, left for reconciliation",
				zap.String("order_id", order.ID), zap.String("email", order.OwnerEmail), zap.Error(err))
		}
		sum.ChancesGranted = granted
	}

	s.publish(ctx, TopicOrderPlaced, EventOrderPlaced, order.ID, placedPayload(order))
	return sum, nil
}

// existingByReceipt finds the order a receipt was already placed with. A
// receipt owned by someone else is reported as a duplicate, never returned.
func (s *Service) existingByReceipt(ctx context.Context, email, receiptID string) (Summary, bool, error) {
	var (
		o   store.Order
		err error
	)
	cachedID, cached := "", false
	if s.Receipts != nil {
		cachedID, cached = s.Receipts.Lookup(ctx, receiptID)
	}
	err = s.Store.View(ctx, func(tx store.Tx) (err error) {
		if cached {
			if o, err = tx.GetOrder(ctx, cachedID); err == nil {
				return nil
			}
		}
		o, err = tx.GetOrderByReceipt(ctx, receiptID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	if o.OwnerEmail != email {
		return Summary{}, false, fmt.Errorf("%w: %s", store.ErrDuplicateReceipt, receiptID)
	}
	sum := summarize(o)
	sum.Existing = true
	return sum, true, nil
}

// ConfirmReceipt re-applies the hide step for every product of the order
// bound to receiptID. Safe to call repeatedly.
func (s *Service) ConfirmReceipt(ctx context.Context, receiptID string) (int64, error) {
	ctx, span := observability.Tracer(s.Tracer).Start(ctx, "orders.ConfirmReceipt")
	defer span.End()

	if receiptID == "" {
		return 0, fmt.Errorf("%w: empty receipt id", ErrInvalidReference)
	}
	var (
		order  store.Order
		hidden int64
	)
	err := s.Store.InTx(ctx, func(tx store.Tx) (err error) {
		order, err = tx.GetOrderByReceipt(ctx, receiptID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: receipt %s", ErrInvalidReference, receiptID)
		}
		if err != nil {
			return err
		}
		hidden, err = inventory.Hide(ctx, tx, saleableIDs(order.Lines))
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	s.log().Info("receipt confirmed",
		zap.String("receipt_id", receiptID), zap.String("order_id", order.ID), zap.Int64("hidden", hidden))
	s.publish(ctx, TopicReceiptConfirmed, EventReceiptConfirmed, order.ID,
		ReceiptConfirmedPayload{OrderID: order.ID, ReceiptID: receiptID, Hidden: hidden})
	return hidden, nil
}

// VerifyAndConfirm asks the payment provider about receiptID and confirms it on success.
func (s *Service) VerifyAndConfirm(ctx context.Context, receiptID string) (int64, error) {
	if s.Payments == nil {
		return 0, errors.New("payment verifier not configured")
	}
	ok, err := s.Payments.Verify(ctx, receiptID)
	if err != nil {
		return 0, fmt.Errorf("verify receipt: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: receipt %s", ErrPaymentNotVerified, receiptID)
	}
	return s.ConfirmReceipt(ctx, receiptID)
}

// AttachReceipt back-fills the receipt id of an order placed before payment completed.
func (s *Service) AttachReceipt(ctx context.Context, email, orderID, receiptID string) error {
	if receiptID == "" {
		return fmt.Errorf("%w: empty receipt id", ErrInvalidReference)
	}
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && o.OwnerEmail != email) {
			return fmt.Errorf("%w: order %s", ErrInvalidReference, orderID)
		}
		if err != nil {
			return err
		}
		return tx.AttachReceipt(ctx, orderID, receiptID)
	})
	if err != nil {
		return err
	}
	if s.Receipts != nil {
		if err := s.Receipts.Remember(ctx, receiptID, orderID); err != nil {
			s.log().Warn("remember receipt", zap.String("receipt_id", receiptID), zap.Error(err))
		}
	}
	return nil
}

// GetOrderHistory lists the owner's orders newest first. Donation lines are
// left out of both the lines and the totals.
func (s *Service) GetOrderHistory(ctx context.Context, email string) ([]Summary, error) {
	var orders []store.Order
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		orders, err = tx.ListOrdersByOwner(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(orders))
	for _, o := range orders {
		lines := make([]store.OrderLine, 0, len(o.Lines))
		for _, l := range o.Lines {
			if !l.Donation {
				lines = append(lines, l)
			}
		}
		o.Lines = lines
		out = append(out, summarize(o))
	}
	return out, nil
}

func (s *Service) LifetimeTotal(ctx context.Context, email string) (int64, error) {
	var total int64
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		total, err = tx.LifetimeTotal(ctx, email)
		return err
	})
	return total, err
}

func (s *Service) publish(ctx context.Context, topic, eventType, key string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, topic, eventType, key, payload); err != nil {
		s.log().Warn("publish event", zap.String("event_type", eventType), zap.String("key", key), zap.Error(err))
	}
}

// saleableIDs skips the donation sentinel, which is never on sale.
func saleableIDs(lines []store.OrderLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if !l.Donation {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

func placedPayload(o store.Order) OrderPlacedPayload {
	lines := make([]LinePayload, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LinePayload{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Donation: l.Donation})
	}
	return OrderPlacedPayload{
		OrderID:       o.ID,
		OwnerEmail:    o.OwnerEmail,
		ReceiptID:     o.ReceiptID,
		Lines:         lines,
		Total:         o.Total(),
		PurchaseTotal: o.PurchaseTotal(),
	}
}
