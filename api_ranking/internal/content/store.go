package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"frameworks/pkg/logging"
)

// Store is the persistent source of truth for items, counters and tiers.
type Store interface {
	FindActiveCreatedAfter(ctx context.Context, cutoff time.Time) ([]Item, error)
	// UpdateTier moves an item from -> to, failing with ErrTierConflict when
	// the stored tier is no longer from.
	UpdateTier(ctx context.Context, id int64, from, to Tier) error
	// IncrementCounter bumps one counter and returns the updated item.
	IncrementCounter(ctx context.Context, id int64, m Metric) (Item, error)
	// FindLiveIDs returns the subset of ids that are not deleted and were
	// created after cutoff.
	FindLiveIDs(ctx context.Context, ids []int64, cutoff time.Time) (map[int64]bool, error)
	GetRecipient(ctx context.Context, userID int64) (Recipient, error)
}

const itemColumns = `id, owner_id, tier, like_count, reply_count, view_count, certify_count, created_at, is_deleted`

type PostgresStore struct {
	db     *sql.DB
	logger logging.Logger
}

func NewPostgresStore(db *sql.DB, logger logging.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logging.OrDiscard(logger)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		it   Item
		tier string
	)
	if err := row.Scan(&it.ID, &it.OwnerID, &tier,
		&it.Counters.Likes, &it.Counters.Replies, &it.Counters.Views, &it.Counters.Certifies,
		&it.CreatedAt, &it.IsDeleted); err != nil {
		return Item{}, err
	}
	t, err := ParseTier(tier)
	if err != nil {
		return Item{}, fmt.Errorf("item %d: %w", it.ID, err)
	}
	it.Tier = t
	return it, nil
}

func (s *PostgresStore) FindActiveCreatedAfter(ctx context.Context, cutoff time.Time) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM lookout.content_items
		WHERE is_deleted = FALSE AND created_at > $1
		ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query active items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			// One corrupt row should not hide the rest of the batch.
			s.logger.WithError(err).Warn("Skipping unreadable content item")
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTier(ctx context.Context, id int64, from, to Tier) error {
	if err := Transition(from, to); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE lookout.content_items
		SET tier = $3, updated_at = NOW()
		WHERE id = $1 AND tier = $2 AND is_deleted = FALSE`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update tier of item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tier of item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %d not in tier %s: %w", id, from, ErrTierConflict)
	}
	return nil
}

func (s *PostgresStore) IncrementCounter(ctx context.Context, id int64, m Metric) (Item, error) {
	col, err := m.column()
	if err != nil {
		return Item{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE lookout.content_items
		SET `+col+` = `+col+` + 1, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING `+itemColumns, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("increment %s of item %d: %w", m, id, err)
	}
	return it, nil
}

func (s *PostgresStore) FindLiveIDs(ctx context.Context, ids []int64, cutoff time.Time) (map[int64]bool, error) {
	live := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return live, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM lookout.content_items
		WHERE id = ANY($1) AND is_deleted = FALSE AND created_at > $2`,
		pq.Array(ids), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query live ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan live id: %w", err)
		}
		live[id] = true
	}
	return live, rows.Err()
}

// GetRecipient loads notification preferences. Users without a row get the
// defaults: notifications on, no push token.
func (s *PostgresStore) GetRecipient(ctx context.Context, userID int64) (Recipient, error) {
	r := Recipient{ID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT notifications_enabled, push_token
		FROM lookout.recipients
		WHERE user_id = $1`, userID).Scan(&r.NotificationsEnabled, &r.PushToken)
	if errors.Is(err, sql.ErrNoRows) {
		r.NotificationsEnabled = true
		return r, nil
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("get recipient %d: %w", userID, err)
	}
	return r, nil
}
