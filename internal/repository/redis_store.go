package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/billing"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

const (
	redisKeyPrefix   = "clauseguard:"
	redisMaxRetries  = 16
	redisEventMarker = "1"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	// EventTTL bounds how long processed event ids are remembered. Zero keeps them forever.
	EventTTL time.Duration
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisStore applies mutations with WATCH/MULTI on the event marker and the subscriber hash,
// retrying when another writer touched either key first.
type RedisStore struct {
	rdb      *goredis.Client
	eventTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRedisStore(rdb *goredis.Client, eventTTL time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, eventTTL: eventTTL, logger: logger, now: time.Now}
}

func stateKey(subscriberID string) string { return redisKeyPrefix + "entitlement:" + subscriberID }
func eventKey(eventID string) string      { return redisKeyPrefix + "event:" + eventID }

func (s *RedisStore) Get(ctx context.Context, subscriberID string) (entitlement.State, bool, error) {
	h, err := s.rdb.HGetAll(ctx, stateKey(subscriberID)).Result()
	if err != nil {
		s.logger.Error("failed to read entitlement", "subscriber_id", subscriberID, "error", err)
		return entitlement.State{}, false, fmt.Errorf("get entitlement: %w", err)
	}
	if len(h) == 0 {
		return entitlement.State{}, false, nil
	}
	return decodeState(subscriberID, h), true, nil
}

func decodeState(subscriberID string, h map[string]string) entitlement.State {
	st := entitlement.State{
		SubscriberID: subscriberID,
		Plan:         constants.Plan(h["plan"]),
		LastEventID:  h["last_event_id"],
	}
	if ms, err := strconv.ParseInt(h["last_event_at"], 10, 64); err == nil && ms > 0 {
		st.LastEventAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(h["updated_at"], 10, 64); err == nil {
		st.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return st
}

func (s *RedisStore) Apply(ctx context.Context, m entitlement.Mutation) (entitlement.Outcome, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	ek := eventKey(m.EventID)
	keys := []string{ek}
	var sk string
	if m.Plan != nil {
		sk = stateKey(m.SubscriberID)
		keys = append(keys, sk)
	}

	var out entitlement.Outcome
	txf := func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, ek).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			out = entitlement.OutcomeDuplicate
			return nil
		}

		out = entitlement.OutcomeRecorded
		write := false
		if m.Plan != nil {
			h, err := tx.HGetAll(ctx, sk).Result()
			if err != nil {
				return err
			}
			cur := entitlement.State{}
			if len(h) > 0 {
				cur = decodeState(m.SubscriberID, h)
			}
			if entitlement.Supersedes(cur, m.OccurredAt) {
				out = entitlement.OutcomeApplied
				write = true
			} else {
				out = entitlement.OutcomeStale
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, ek, redisEventMarker, s.eventTTL)
			if write {
				var lastAt int64
				if !m.OccurredAt.IsZero() {
					lastAt = m.OccurredAt.UnixMilli()
				}
				pipe.HSet(ctx, sk, map[string]any{
					"plan":          string(*m.Plan),
					"last_event_id": m.EventID,
					"last_event_at": lastAt,
					"updated_at":    s.now().UTC().UnixMilli(),
				})
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return "", fmt.Errorf("apply entitlement: %w", err)
	}
	return "", fmt.Errorf("apply entitlement: too much contention on %s", m.SubscriberID)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// RedisNotifier publishes applied entitlement changes on a channel.
type RedisNotifier struct {
	rdb     *goredis.Client
	channel string
}

func NewRedisNotifier(rdb *goredis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "entitlements"
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, c billing.Change) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}
