package redisx

import "time"

const (
	// Order placement idempotency: idem:order:receipt:{receipt_id} -> order_id
	KeyIdemOrderReceipt = "idem:order:receipt:%s"

	// Reward ledger cache: chances:{email} -> hash {data: ledger json, v: updated_at in µs}
	KeyChances = "chances:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLChanceCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
