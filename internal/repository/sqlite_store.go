package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// SQLiteStore is the single-node entitlement store. OpenSQLite limits the pool to one
// connection, so each Apply transaction runs alone.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger, now: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, subscriberID string) (entitlement.State, bool, error) {
	var (
		st        entitlement.State
		plan      string
		lastAt    sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subscriber_id, plan, last_event_id, last_event_at, updated_at
		 FROM entitlements WHERE subscriber_id = ?`,
		subscriberID,
	).Scan(&st.SubscriberID, &plan, &st.LastEventID, &lastAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entitlement.State{}, false, nil
	}
	if err != nil {
		s.logger.Error("failed to read entitlement", "subscriber_id", subscriberID, "error", err)
		return entitlement.State{}, false, fmt.Errorf("get entitlement: %w", err)
	}
	st.Plan = constants.Plan(plan)
	if lastAt.Valid {
		st.LastEventAt = time.UnixMilli(lastAt.Int64).UTC()
	}
	st.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return st, true, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, m entitlement.Mutation) (out entitlement.Outcome, err error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC().UnixMilli()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO billing_events (event_id, event_type, subscriber_id, occurred_at, received_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		m.EventID, m.EventType, m.SubscriberID, unixMilli(m.OccurredAt), now,
	)
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = tx.Rollback()
		return entitlement.OutcomeDuplicate, err
	}

	out = entitlement.OutcomeRecorded
	if m.Plan != nil {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO entitlements (subscriber_id, plan, last_event_id, last_event_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (subscriber_id) DO UPDATE SET
			   plan = excluded.plan,
			   last_event_id = excluded.last_event_id,
			   last_event_at = excluded.last_event_at,
			   updated_at = excluded.updated_at
			 WHERE entitlements.last_event_at IS NULL
			    OR excluded.last_event_at IS NULL
			    OR entitlements.last_event_at <= excluded.last_event_at`,
			m.SubscriberID, string(*m.Plan), m.EventID, unixMilli(m.OccurredAt), now,
		)
		if err != nil {
			return "", fmt.Errorf("upsert entitlement: %w", err)
		}
		out = entitlement.OutcomeApplied
		if n, _ := res.RowsAffected(); n == 0 {
			out = entitlement.OutcomeStale
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
