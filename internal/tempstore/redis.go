package tempstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

// RedisClient is the subset of the go-redis client used by the Redis backend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisFactory shares collections between processes through Redis. Entry
// lifetime is enforced with key TTLs.
type RedisFactory struct {
	client RedisClient
	prefix string
	opts   options
}

// NewRedisFactory wraps client. Keys are stored as
// <prefix><collection>:<key>.
func NewRedisFactory(client RedisClient, prefix string, opts ...Option) *RedisFactory {
	return &RedisFactory{client: client, prefix: prefix, opts: buildOptions(opts)}
}

// DialRedis parses a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Get returns the store for collection.
func (f *RedisFactory) Get(collection string) Store {
	return &redisStore{factory: f, collection: collection}
}

type redisStore struct {
	factory    *RedisFactory
	collection string
}

func (s *redisStore) key(name string) string {
	return s.factory.prefix + s.collection + ":" + name
}

func (s *redisStore) load(ctx context.Context, name string) (*record, error) {
	raw, err := s.factory.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

func (s *redisStore) encode(ctx context.Context, value map[string]any) ([]byte, error) {
	data, err := clone(value)
	if err != nil {
		return nil, err
	}
	now := s.factory.opts.now()
	return json.Marshal(record{
		Owner:   s.factory.opts.ownerFrom(ctx),
		Updated: now,
		Expire:  now.Add(s.factory.opts.expire),
		Data:    data,
	})
}

func (s *redisStore) Get(ctx context.Context, key string) (map[string]any, error) {
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, wzerrors.NewStoreError("get", key, err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value map[string]any) error {
	payload, err := s.encode(ctx, value)
	if err != nil {
		return wzerrors.NewStoreError("set", key, err)
	}
	if err := s.factory.client.Set(ctx, s.key(key), payload, s.factory.opts.expire).Err(); err != nil {
		return wzerrors.NewStoreError("set", key, err)
	}
	return nil
}

func (s *redisStore) SetIfNotExists(ctx context.Context, key string, value map[string]any) (bool, error) {
	payload, err := s.encode(ctx, value)
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	ok, err := s.factory.client.SetNX(ctx, s.key(key), payload, s.factory.opts.expire).Result()
	if err != nil {
		return false, wzerrors.NewStoreError("set", key, err)
	}
	return ok, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.factory.client.Del(ctx, s.key(key)).Err(); err != nil {
		return wzerrors.NewStoreError("delete", key, err)
	}
	return nil
}

func (s *redisStore) Metadata(ctx context.Context, key string) (*Metadata, error) {
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, wzerrors.NewStoreError("metadata", key, err)
	}
	if rec == nil {
		return nil, nil
	}
	return &Metadata{Owner: rec.Owner, Updated: rec.Updated}, nil
}
