package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eventdesk/backoffice/internal/shared"
)

const (
	// DefaultInAppRetention is how long in-app entries stay visible.
	DefaultInAppRetention = 30 * 24 * time.Hour
	// DefaultInAppMaxEntries bounds each recipient's log.
	DefaultInAppMaxEntries = 100
)

// InAppEntry is one item of a recipient's in-app notification log.
type InAppEntry struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Timestamp  time.Time         `json:"timestamp"`
	Read       bool              `json:"read"`
	EntityID   *int64            `json:"entityId,omitempty"`
	EntityType string            `json:"entityType,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Priority   Priority          `json:"priority"`
}

// InAppStore keeps a bounded, most-recent-first log per tenant and recipient
// in a Redis list.
type InAppStore struct {
	client     *redis.Client
	retention  time.Duration
	maxEntries int64
	now        func() time.Time
}

// NewInAppStore constructs the store. Non-positive limits use the defaults.
func NewInAppStore(client *redis.Client, retention time.Duration, maxEntries int) *InAppStore {
	if retention <= 0 {
		retention = DefaultInAppRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultInAppMaxEntries
	}
	return &InAppStore{client: client, retention: retention, maxEntries: int64(maxEntries), now: time.Now}
}

func inAppKey(tenantID, userID int64) string {
	return fmt.Sprintf("notifications:inapp:%d:%d", tenantID, userID)
}

// Append pushes an entry to the head of the recipient's log and returns it
// with its assigned id.
func (s *InAppStore) Append(ctx context.Context, tenantID, userID int64, entry InAppEntry) (InAppEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if entry.Priority == "" {
		entry.Priority = PriorityNormal
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return InAppEntry{}, err
	}
	key := inAppKey(tenantID, userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.maxEntries-1)
		pipe.Expire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return InAppEntry{}, fmt.Errorf("append in-app notification: %w", err)
	}
	return entry, nil
}

// List returns entries newer than the retention window, most recent first.
func (s *InAppStore) List(ctx context.Context, tenantID, userID int64, unreadOnly bool, limit int) ([]InAppEntry, error) {
	raw, err := s.client.LRange(ctx, inAppKey(tenantID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list in-app notifications: %w", err)
	}
	cutoff := s.now().Add(-s.retention)
	entries := make([]InAppEntry, 0, len(raw))
	for _, item := range raw {
		var entry InAppEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if unreadOnly && entry.Read {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// UnreadCount counts unread entries inside the retention window.
func (s *InAppStore) UnreadCount(ctx context.Context, tenantID, userID int64) (int, error) {
	entries, err := s.List(ctx, tenantID, userID, true, 0)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// MarkRead flags one entry as read. Concurrent appends retry the update.
func (s *InAppStore) MarkRead(ctx context.Context, tenantID, userID int64, id string) error {
	key := inAppKey(tenantID, userID)
	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			for idx, item := range raw {
				var entry InAppEntry
				if err := json.Unmarshal([]byte(item), &entry); err != nil || entry.ID != id {
					continue
				}
				if entry.Read {
					return nil
				}
				entry.Read = true
				data, err := json.Marshal(entry)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.LSet(ctx, key, int64(idx), data)
					return nil
				})
				return err
			}
			return fmt.Errorf("%w: notification %s", shared.ErrNotFound, id)
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: notification %s changed concurrently", shared.ErrConflict, id)
}
