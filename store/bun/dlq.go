package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
)

// PushDLQ adds a failed message entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.db.NewInsert().Model(toDLQModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("postmaster/bun: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.db.NewSelect().Model(&models).Order("failed_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("postmaster/bun: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromDLQModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("postmaster/bun: list dlq convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, postmaster.ErrDLQNotFound
		}
		return nil, fmt.Errorf("postmaster/bun: get dlq: %w", err)
	}
	return fromDLQModel(m)
}

// ReplayDLQ marks an entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.NewUpdate().
		Model((*dlqEntryModel)(nil)).
		Set("replayed_at = ?", time.Now().UTC()).
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("postmaster/bun: replay dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return postmaster.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*dlqEntryModel)(nil)).
		Where("failed_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("postmaster/bun: purge dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDLQ returns the number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().Model((*dlqEntryModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("postmaster/bun: count dlq: %w", err)
	}
	return int64(count), nil
}
