package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/redis/go-redis/v9"
)

// ReceiptIndex is the fast path for "has this receipt already produced an order".
// The database stays the source of truth.
type ReceiptIndex struct{ RDB *redis.Client }

func (r ReceiptIndex) Lookup(ctx context.Context, receiptID string) (string, bool) {
	id, err := r.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderReceipt, receiptID)).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (r ReceiptIndex) Remember(ctx context.Context, receiptID, orderID string) error {
	return r.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderReceipt, receiptID), orderID, TTLIdempotency).Err()
}

type cachedLedger struct {
	Remaining int64     `json:"remaining"`
	Granted   int64     `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// setIfNewer writes the ledger only when no newer version is cached.
// KEYS[1]=key ARGV[1]=json ARGV[2]=version ARGV[3]=ttl ms
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'v', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// ChanceCache caches reward ledgers for the read-heavy chances endpoint.
// Entries are versioned by UpdatedAt in microseconds.
type ChanceCache struct{ RDB *redis.Client }

func (c ChanceCache) Get(ctx context.Context, email string) (store.RewardLedger, bool) {
	s, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyChances, email), "data").Result()
	if err != nil {
		return store.RewardLedger{}, false
	}
	var v cachedLedger
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return store.RewardLedger{}, false
	}
	return store.RewardLedger{OwnerEmail: email, Remaining: v.Remaining, Granted: v.Granted, UpdatedAt: v.UpdatedAt}, true
}

// Set stores l unless the cache already holds a newer ledger. Writing an
// older copy is not an error, it is simply dropped.
func (c ChanceCache) Set(ctx context.Context, l store.RewardLedger) error {
	b, err := json.Marshal(cachedLedger{Remaining: l.Remaining, Granted: l.Granted, UpdatedAt: l.UpdatedAt})
	if err != nil {
		return err
	}
	return setIfNewer.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyChances, l.OwnerEmail)},
		string(b), l.UpdatedAt.UnixMicro(), TTLChanceCache.Milliseconds()).Err()
}

func (c ChanceCache) Invalidate(ctx context.Context, email string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyChances, email)).Err()
}

// Dedup marks an event id as processed. First reports whether this call claimed it.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

func (d Dedup) First(ctx context.Context, id string) (bool, error) {
	ok, err := d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return ok, nil
}

// Forget releases a claim so a failed event can be processed again on redelivery.
func (d Dedup) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
