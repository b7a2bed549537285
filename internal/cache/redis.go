package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:    client,
		baseTTL:   15 * time.Minute,
		maxJitter: 5,
	}
}

type RedisCache struct {
	client    *redis.Client
	baseTTL   time.Duration
	maxJitter int // minutes
}

func (r *RedisCache) Get(ctx context.Context, userEmail string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userEmail)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, userEmail string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(userEmail)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) SetIfGeneration(ctx context.Context, userEmail string, generation int64, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(r.maxJitter+1)) * time.Minute
	ttl := r.baseTTL + jitter
	genKey := generationKey(userEmail)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userEmail), jsonCart, ttl)
			return nil
		})
		return err
	}, genKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleFill
	}
	if err != nil && !errors.Is(err, ErrStaleFill) {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return err
}

func (r *RedisCache) Invalidate(ctx context.Context, userEmail string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(userEmail))
		pipe.Incr(ctx, generationKey(userEmail))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(userEmail string) string {
	return fmt.Sprintf("cart:%s", userEmail)
}

func generationKey(userEmail string) string {
	return fmt.Sprintf("cart:gen:%s", userEmail)
}
