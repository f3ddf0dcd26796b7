package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"action-limiter/actionlimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore persiste o histórico como string JSON por chave.
//
// Útil quando vários processos (ou várias instâncias do sidecar) precisam
// enxergar o mesmo histórico. Update faz compare-and-swap via WATCH/MULTI.
type RedisStore struct {
	rdb *redis.Client

	// ttl aplica em toda gravação; 0 = sem expiração.
	// Deve ser >= à maior janela configurada.
	ttl        time.Duration
	maxRetries int
}

type RedisStoreOption func(*RedisStore)

func WithHistoryTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = d }
}

func WithMaxRetries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:        rdb,
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Load(ctx context.Context, key string) (domain.History, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %w", domain.ErrHistoryRead, key, err)
	}
	return decodeHistory(raw)
}

func (s *RedisStore) Save(ctx context.Context, key string, h domain.History) error {
	raw, err := encodeHistory(h)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrHistoryWrite, key, err)
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %w", domain.ErrHistoryWrite, key, err)
	}
	return nil
}

// Update implementa domain.AtomicHistoryStore. Se outra escrita tocar a chave
// entre o GET e o EXEC, a transação é refeita (até maxRetries vezes).
func (s *RedisStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) (domain.History, error) {
	var written domain.History

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: redis get %s: %w", domain.ErrHistoryRead, key, err)
		}
		current, err := decodeHistory(raw)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		enc, err := encodeHistory(next)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", domain.ErrHistoryWrite, key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, s.ttl)
			return nil
		})
		if err == nil {
			written = next
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, domain.ErrHistoryRead) || errors.Is(err, domain.ErrCorruptHistory) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: redis watch %s: %w", domain.ErrHistoryWrite, key, err)
	}
	return nil, fmt.Errorf("%w: %w: %s", domain.ErrHistoryWrite, domain.ErrConflict, key)
}

var _ domain.AtomicHistoryStore = (*RedisStore)(nil)
