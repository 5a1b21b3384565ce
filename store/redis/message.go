package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// AppendMessages stores every record as a Hash and adds it to the overflow
// Sorted Set in a single transaction.
func (s *Store) AppendMessages(ctx context.Context, msgs []*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, m := range msgs {
		mID := m.ID.String()
		member := overflowMember(m.Seq, mID)
		pipe.HSet(ctx, messageKey(mID), messageToMap(m, member))
		pipe.ZAdd(ctx, overflowKey, goredis.Z{Score: float64(m.Priority), Member: member})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("append messages", err)
	}
	return nil
}

// FetchTopMessages reads the first n members of the overflow set and loads
// their hashes.
func (s *Store) FetchTopMessages(ctx context.Context, n int) ([]*message.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := s.client.ZRange(ctx, overflowKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, unavailable("fetch messages", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	for i, member := range members {
		_, mID, parseErr := parseOverflowMember(member)
		if parseErr != nil {
			return nil, parseErr
		}
		cmds[i] = pipe.HGetAll(ctx, messageKey(mID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("fetch messages", err)
	}

	out := make([]*message.Message, 0, len(cmds))
	var orphans []interface{}
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			orphans = append(orphans, members[i])
			continue
		}
		m, convErr := mapToMessage(vals)
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, m)
	}
	if len(orphans) > 0 {
		// The record hash is gone (eviction, expiry or a manual DEL); the
		// member would otherwise head the set forever.
		if err := s.client.ZRem(ctx, overflowKey, orphans...).Err(); err != nil {
			return nil, unavailable("remove orphan members", err)
		}
		s.logger.Warn("dropped overflow members without record", "count", len(orphans))
	}
	return out, nil
}

// RemoveMessages deletes the records and their overflow members in a single
// transaction.
func (s *Store) RemoveMessages(ctx context.Context, ids []id.MessageID) error {
	if len(ids) == 0 {
		return nil
	}

	lookup := s.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(ids))
	for i, mID := range ids {
		cmds[i] = lookup.HGet(ctx, messageKey(mID.String()), "member")
	}
	if _, err := lookup.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return unavailable("remove messages lookup", err)
	}

	pipe := s.client.TxPipeline()
	queued := 0
	for i, cmd := range cmds {
		member, err := cmd.Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return unavailable("remove messages lookup", err)
		}
		pipe.ZRem(ctx, overflowKey, member)
		pipe.Del(ctx, messageKey(ids[i].String()))
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("remove messages", err)
	}
	return nil
}

// CountMessages returns the cardinality of the overflow set.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, overflowKey).Result()
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return n, nil
}

// MessageKeys scans the overflow set. Only scores and members are read.
func (s *Store) MessageKeys(ctx context.Context) ([]message.Key, error) {
	zs, err := s.client.ZRangeWithScores(ctx, overflowKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable("message keys", err)
	}
	keys := make([]message.Key, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		seq, mIDStr, parseErr := parseOverflowMember(member)
		if parseErr != nil {
			return nil, parseErr
		}
		mID, parseErr := id.ParseMessageID(mIDStr)
		if parseErr != nil {
			return nil, fmt.Errorf("postmaster/redis: parse message id: %w", parseErr)
		}
		keys = append(keys, message.Key{Priority: int(z.Score), Seq: seq, ID: mID})
	}
	return keys, nil
}

// ── helpers ──

func messageToMap(m *message.Message, member string) map[string]interface{} {
	return map[string]interface{}{
		"id":          m.ID.String(),
		"payload":     string(m.Payload),
		"priority":    strconv.Itoa(m.Priority),
		"seq":         strconv.FormatUint(m.Seq, 10),
		"state":       string(m.State),
		"attempts":    strconv.Itoa(m.Attempts),
		"last_error":  m.LastError,
		"enqueued_at": m.EnqueuedAt.Format(time.RFC3339Nano),
		"member":      member,
	}
}

func mapToMessage(m map[string]string) (*message.Message, error) {
	mID, err := id.ParseMessageID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("postmaster/redis: parse message id: %w", err)
	}
	priority, _ := strconv.Atoi(m["priority"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseUint(m["seq"], 10, 64)                   //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &message.Message{
		ID:         mID,
		Payload:    []byte(m["payload"]),
		Priority:   priority,
		Seq:        seq,
		State:      message.State(m["state"]),
		Attempts:   attempts,
		LastError:  m["last_error"],
		EnqueuedAt: enqueuedAt,
	}, nil
}
