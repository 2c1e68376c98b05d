package internal

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"strconv"
	"time"
)

const (
	redisKeyPrefix     = "payments:totals:"
	redisRequestsField = "requests"
	redisCentsField    = "cents"
)

type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(ctx context.Context, addr string) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  300 * time.Millisecond,
		WriteTimeout: 300 * time.Millisecond,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisCounterStore{client: client}, nil
}

func redisKey(u UpstreamId) string {
	return redisKeyPrefix + string(u.Name())
}

func (s *RedisCounterStore) Add(ctx context.Context, u UpstreamId, requests, cents int64) error {
	key := redisKey(u)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, redisRequestsField, requests)
		pipe.HIncrBy(ctx, key, redisCentsField, cents)
		return nil
	})
	return err
}

func (s *RedisCounterStore) Load(ctx context.Context) (Totals, error) {
	var totals Totals
	for _, u := range Upstreams {
		fields, err := s.client.HGetAll(ctx, redisKey(u)).Result()
		if err != nil {
			return totals, err
		}
		c, err := parseRedisCounter(fields)
		if err != nil {
			return totals, fmt.Errorf("%s: %w", redisKey(u), err)
		}
		totals[u] = c
	}
	return totals, nil
}

func parseRedisCounter(fields map[string]string) (Counter, error) {
	var c Counter
	var err error
	if v, ok := fields[redisRequestsField]; ok {
		if c.Requests, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, err
		}
	}
	if v, ok := fields[redisCentsField]; ok {
		if c.Cents, err = strconv.ParseInt(v, 10, 64); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *RedisCounterStore) Close() {
	_ = s.client.Close()
}
