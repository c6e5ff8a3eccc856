package history

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"returndesk/backend/internal/domain"
)

// RedisStore persists the exchange-history envelope as a single JSON value
// under a fixed key, mirroring how the POS front end stored it.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client, key: DefaultKey}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context) (Envelope, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return Envelope{Version: EnvelopeVersion}, nil
	}
	if err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(raw)
}

func (s *RedisStore) Append(ctx context.Context, record domain.ExchangeTransaction) error {
	env, err := s.load(ctx)
	if err != nil {
		return err
	}
	env.Records = append(env.Records, record)

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, payload, 0).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]domain.ExchangeTransaction, error) {
	env, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return env.Records, nil
}
