// Package cache is a typed facade over a key/value store: one method
// per semantic key, so key formatting lives at exactly one call site.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultTTL = 24 * time.Hour

// AppCache holds the event system's shared caches: resolved private
// chat ids per user pair, presence fan-out target sets, and per-user
// deleted-message markers.
type AppCache struct {
	store Store
	ttl   time.Duration
}

func New(store Store) *AppCache {
	return &AppCache{store: store, ttl: defaultTTL}
}

// pvKey is the canonical private-chat pair key. The pair is ordered
// ascending so both call directions produce the same key.
func pvKey(userA, userB int64) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("pv_%d_%d", userA, userB)
}

func userPvsKey(userId int64) string {
	return fmt.Sprintf("user_pvs_%d", userId)
}

func deletedKey(messageId, userId int64) string {
	return fmt.Sprintf("deleted_%d_%d", messageId, userId)
}

func (c *AppCache) PrivateChatId(ctx context.Context, userA, userB int64) (int64, bool) {
	val, ok, err := c.store.Get(ctx, pvKey(userA, userB))
	if err != nil || !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return 0, false
	}
	return id, true
}

func (c *AppCache) SetPrivateChatId(ctx context.Context, userA, userB, chatId int64) error {
	raw, _ := json.Marshal(chatId)
	return c.store.Set(ctx, pvKey(userA, userB), string(raw), c.ttl)
}

func (c *AppCache) PrivateChatGroups(ctx context.Context, userId int64) ([]int64, bool) {
	val, ok, err := c.store.Get(ctx, userPvsKey(userId))
	if err != nil || !ok {
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// SetPrivateChatGroups writes the presence fan-out target set. Callers
// refresh this entry whenever a private chat is created rather than
// expiring it, so presence publishes never read a stale set.
func (c *AppCache) SetPrivateChatGroups(ctx context.Context, userId int64, chatIds []int64) error {
	raw, err := json.Marshal(chatIds)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, userPvsKey(userId), string(raw), c.ttl)
}

// MarkMessageDeletedFor records the per-(message,user) suppression
// marker. It must be written before the corresponding publish.
func (c *AppCache) MarkMessageDeletedFor(ctx context.Context, messageId, userId int64) error {
	return c.store.Set(ctx, deletedKey(messageId, userId), "1", 0)
}

func (c *AppCache) IsMessageDeletedFor(ctx context.Context, messageId, userId int64) bool {
	_, ok, err := c.store.Get(ctx, deletedKey(messageId, userId))
	return err == nil && ok
}
