// Package redisstore хранит слот последней тревоги в Redis и раздает тревоги
// подписчикам через Pub/Sub.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/infra"
)

type Store struct {
	rdb *redis.Client
}

func NewClient(cfg infra.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewStore(ctx context.Context, rdb *redis.Client) (*Store, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Close() error { return s.rdb.Close() }

// SaveLastAlert атомарно перезаписывает слот и публикует payload в канал тревог.
func (s *Store) SaveLastAlert(ctx context.Context, alert domain.Alert) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, infra.RedisKeyLastAlert, []byte(alert.RawPayload), 0)
		pipe.Set(ctx, infra.RedisKeyLastAlertReceivedAt, alert.ReceivedAt.UnixNano(), 0)
		pipe.Publish(ctx, infra.RedisChanAlerts, []byte(alert.RawPayload))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save last alert: %w", err)
	}
	return nil
}

func (s *Store) LastAlert(ctx context.Context) (*domain.Alert, error) {
	vals, err := s.rdb.MGet(ctx, infra.RedisKeyLastAlert, infra.RedisKeyLastAlertReceivedAt).Result()
	if err != nil {
		return nil, fmt.Errorf("load last alert: %w", err)
	}
	payload, ok := vals[0].(string)
	if !ok {
		return nil, nil
	}

	receivedAt := time.Time{}
	if raw, ok := vals[1].(string); ok {
		if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil {
			receivedAt = time.Unix(0, nanos).UTC()
		}
	}
	alert := domain.NewAlert(json.RawMessage(payload), receivedAt)
	return &alert, nil
}

// WriteBatch — журнал как ограниченный список, новые события в голове.
func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode journal event %s: %w", e.ID, err)
		}
		values = append(values, data)
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, infra.RedisKeyJournal, values...)
		pipe.LTrim(ctx, infra.RedisKeyJournal, 0, infra.RedisJournalMaxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write journal batch: %w", err)
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	raw, err := s.rdb.LRange(ctx, infra.RedisKeyJournal, 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	out := make([]audit.Event, 0, len(raw))
	for _, item := range raw {
		var e audit.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
