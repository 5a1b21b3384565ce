package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
)

// PushDLQ stores the entry and indexes it by FailedAt.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqIndexKey, goredis.Z{Score: float64(entry.FailedAt.UnixMilli()), Member: eID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("postmaster/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, dlqIndexKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("postmaster/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, dlqKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("postmaster/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, postmaster.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

// ReplayDLQ marks an entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("postmaster/redis: replay dlq exists: %w", err)
	}
	if exists == 0 {
		return postmaster.ErrDLQNotFound
	}
	if err := s.client.HSet(ctx, key, "replayed_at", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("postmaster/redis: replay dlq: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, dlqIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("postmaster/redis: purge dlq range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	members := make([]interface{}, len(ids))
	for i, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
		members[i] = eID
	}
	pipe.ZRem(ctx, dlqIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("postmaster/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, dlqIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("postmaster/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":          e.ID.String(),
		"message_id":  e.MessageID.String(),
		"priority":    strconv.Itoa(e.Priority),
		"payload":     string(e.Payload),
		"error":       e.Error,
		"attempts":    strconv.Itoa(e.Attempts),
		"enqueued_at": e.EnqueuedAt.Format(time.RFC3339Nano),
		"failed_at":   e.FailedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("postmaster/redis: parse dlq id: %w", err)
	}
	msgID, _ := id.ParseMessageID(m["message_id"])                  //nolint:errcheck // best-effort parse from trusted Redis data
	priority, _ := strconv.Atoi(m["priority"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:         eID,
		MessageID:  msgID,
		Priority:   priority,
		Payload:    []byte(m["payload"]),
		Error:      m["error"],
		Attempts:   attempts,
		EnqueuedAt: enqueuedAt,
		FailedAt:   failedAt,
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}
