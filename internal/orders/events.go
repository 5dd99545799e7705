package orders

import "context"

const (
	TopicOrderPlaced      = "order.placed"
	TopicReceiptConfirmed = "order.receipt.confirmed"

	EventOrderPlaced      = "OrderPlaced"
	EventReceiptConfirmed = "ReceiptConfirmed"
)

type LinePayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Donation  bool   `json:"donation,omitempty"`
}

// OrderPlacedPayload is consumed by the rewards worker to reconcile chances.
type OrderPlacedPayload struct {
	OrderID       string        `json:"order_id"`
	OwnerEmail    string        `json:"owner_email"`
	ReceiptID     string        `json:"receipt_id,omitempty"`
	Lines         []LinePayload `json:"lines"`
	Total         int64         `json:"total"`
	PurchaseTotal int64         `json:"purchase_total"`
}

type ReceiptConfirmedPayload struct {
	OrderID   string `json:"order_id"`
	ReceiptID string `json:"receipt_id"`
	Hidden    int64  `json:"hidden"`
}

// EventPublisher is satisfied by *kafka.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType, correlationID string, payload any) error
}
