package rewards

import "context"

const (
	TopicChancesGranted = "reward.chances.granted"
	TopicRewardDrawn    = "reward.drawn"

	EventChancesGranted = "ChancesGranted"
	EventRewardDrawn    = "RewardDrawn"
)

type ChancesGrantedPayload struct {
	OwnerEmail string `json:"owner_email"`
	Granted    int64  `json:"granted"`
	Remaining  int64  `json:"remaining"`
	Reason     string `json:"reason"`
}

type RewardDrawnPayload struct {
	OwnerEmail string `json:"owner_email"`
	ProductID  string `json:"product_id"`
	EntryID    string `json:"entry_id"`
	Remaining  int64  `json:"remaining"`
}

type Publisher interface {
	Publish(ctx context.Context, topic, eventType, correlationID string, payload any) error
}
