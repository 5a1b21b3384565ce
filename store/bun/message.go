package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// AppendMessages inserts the batch in one transaction.
func (s *Store) AppendMessages(ctx context.Context, msgs []*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]*messageModel, len(msgs))
	for i, m := range msgs {
		models[i] = toMessageModel(m)
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&models).Exec(ctx)
		return err
	})
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("postmaster/bun: append messages: %w", postmaster.ErrMessageExists)
		}
		return unavailable("append messages", err)
	}
	return nil
}

// FetchTopMessages returns the first n rows ordered by (priority, seq).
func (s *Store) FetchTopMessages(ctx context.Context, n int) ([]*message.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var models []messageModel
	err := s.db.NewSelect().
		Model(&models).
		OrderExpr("priority ASC, seq ASC").
		Limit(n).
		Scan(ctx)
	if err != nil {
		return nil, unavailable("fetch messages", err)
	}

	msgs := make([]*message.Message, 0, len(models))
	for i := range models {
		m, convErr := fromMessageModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// RemoveMessages deletes the rows in one statement.
func (s *Store) RemoveMessages(ctx context.Context, ids []id.MessageID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, mID := range ids {
		keys[i] = mID.String()
	}
	_, err := s.db.NewDelete().
		Model((*messageModel)(nil)).
		Where("id IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return unavailable("remove messages", err)
	}
	return nil
}

// CountMessages returns the number of stored rows.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().Model((*messageModel)(nil)).Count(ctx)
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return int64(count), nil
}

// MessageKeys reads only the ordering columns of every row.
func (s *Store) MessageKeys(ctx context.Context) ([]message.Key, error) {
	var rows []struct {
		ID       string `bun:"id"`
		Priority int    `bun:"priority"`
		Seq      int64  `bun:"seq"`
	}
	err := s.db.NewSelect().
		Model((*messageModel)(nil)).
		Column("id", "priority", "seq").
		OrderExpr("priority ASC, seq ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, unavailable("message keys", err)
	}

	keys := make([]message.Key, 0, len(rows))
	for _, r := range rows {
		mID, err := id.ParseMessageID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("postmaster/bun: parse message id %q: %w", r.ID, err)
		}
		keys = append(keys, message.Key{Priority: r.Priority, Seq: uint64(r.Seq), ID: mID}) //nolint:gosec // written from a uint64
	}
	return keys, nil
}
