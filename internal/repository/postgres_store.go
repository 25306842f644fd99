package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// PostgresStore keeps entitlement state in Postgres. The event insert and the state upsert
// share one transaction; the primary key on billing_events serializes redeliveries and the
// row lock taken by the upsert serializes writers per subscriber.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) Get(ctx context.Context, subscriberID string) (entitlement.State, bool, error) {
	var (
		st     entitlement.State
		plan   string
		lastAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT subscriber_id, plan, last_event_id, last_event_at, updated_at
		 FROM entitlements WHERE subscriber_id = $1`,
		subscriberID,
	).Scan(&st.SubscriberID, &plan, &st.LastEventID, &lastAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlement.State{}, false, nil
	}
	if err != nil {
		s.logger.Error("failed to read entitlement", "subscriber_id", subscriberID, "error", err)
		return entitlement.State{}, false, fmt.Errorf("get entitlement: %w", err)
	}
	st.Plan = constants.Plan(plan)
	if lastAt != nil {
		st.LastEventAt = lastAt.UTC()
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, true, nil
}

func (s *PostgresStore) Apply(ctx context.Context, m entitlement.Mutation) (out entitlement.Outcome, err error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO billing_events (event_id, event_type, subscriber_id, occurred_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		m.EventID, m.EventType, m.SubscriberID, nullTime(m.OccurredAt),
	)
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = tx.Rollback(ctx)
		return entitlement.OutcomeDuplicate, err
	}

	out = entitlement.OutcomeRecorded
	if m.Plan != nil {
		tag, err = tx.Exec(ctx,
			`INSERT INTO entitlements (subscriber_id, plan, last_event_id, last_event_at, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (subscriber_id) DO UPDATE SET
			   plan = EXCLUDED.plan,
			   last_event_id = EXCLUDED.last_event_id,
			   last_event_at = EXCLUDED.last_event_at,
			   updated_at = EXCLUDED.updated_at
			 WHERE entitlements.last_event_at IS NULL
			    OR EXCLUDED.last_event_at IS NULL
			    OR entitlements.last_event_at <= EXCLUDED.last_event_at`,
			m.SubscriberID, string(*m.Plan), m.EventID, nullTime(m.OccurredAt),
		)
		if err != nil {
			return "", fmt.Errorf("upsert entitlement: %w", err)
		}
		out = entitlement.OutcomeApplied
		if tag.RowsAffected() == 0 {
			out = entitlement.OutcomeStale
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.pool, 0, s.logger)
}

func (s *PostgresStore) Close() error {
	Close(s.pool, s.logger)
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
