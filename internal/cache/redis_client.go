// Package cache holds the optional Redis layer: live step-event
// publishing for status subscribers and the shared quality-threshold
// override. Everything here degrades gracefully when Redis is absent.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/observability"
)

// ErrCacheMiss indicates the key is absent.
var ErrCacheMiss = errors.New("cache miss")

const (
	keyPrefix         = "docworker:"
	stepEventChannel  = "events:steps"
	thresholdKey      = "quality:min_threshold"
	thresholdCacheTTL = 30 * time.Second
)

// StepEvent is the payload published for each completed or failed step.
type StepEvent struct {
	DocumentID string    `json:"document_id"`
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// RedisClient wraps go-redis for docworker's pub/sub and threshold needs.
type RedisClient struct {
	client *redis.Client
	logger *observability.Logger

	mu            sync.RWMutex
	cachedValue   float64
	cachedAt      time.Time
	fallbackValue float64
}

// NewRedisClient connects to Redis and verifies the connection.
// fallback is the configured minimum quality threshold, used whenever no
// override is stored or Redis is unreachable.
func NewRedisClient(cfg config.RedisConfig, fallback float64, logger *observability.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client:        client,
		logger:        logger.WithComponent("cache"),
		fallbackValue: fallback,
	}, nil
}

// PublishStepEvent broadcasts a step transition. Best effort: publish
// failures are logged and dropped.
func (c *RedisClient) PublishStepEvent(ctx context.Context, documentID uuid.UUID, step domain.StepName, status string) {
	payload, err := json.Marshal(StepEvent{
		DocumentID: documentID.String(),
		Step:       string(step),
		Status:     status,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := c.client.Publish(ctx, keyPrefix+stepEventChannel, payload).Err(); err != nil {
		c.logger.Warn().Err(err).Str("step", string(step)).Msg("step event publish failed")
	}
}

// SubscribeStepEvents streams step events until unsubscribe is called.
func (c *RedisClient) SubscribeStepEvents(ctx context.Context) (<-chan StepEvent, func()) {
	sub := c.client.Subscribe(ctx, keyPrefix+stepEventChannel)

	ch := make(chan StepEvent, 100)
	done := make(chan struct{})

	go func() {
		defer close(ch)
		for {
			select {
			case <-done:
				return
			case msg := <-sub.Channel():
				if msg == nil {
					continue
				}
				var ev StepEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil {
					ch <- ev
				}
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		_ = sub.Close()
	}
	return ch, unsubscribe
}

// MinThreshold returns the shared quality threshold. The stored override
// wins over the configured fallback; reads are cached briefly so the
// admission path does not hit Redis on every upload.
func (c *RedisClient) MinThreshold() float64 {
	c.mu.RLock()
	if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < thresholdCacheTTL {
		v := c.cachedValue
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	value := c.fallbackValue
	raw, err := c.client.Get(ctx, keyPrefix+thresholdKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		c.logger.Warn().Err(err).Msg("threshold read failed, using configured value")
	default:
		if parsed, perr := strconv.ParseFloat(raw, 64); perr == nil && parsed >= 0 && parsed <= 1 {
			value = parsed
		}
	}

	c.mu.Lock()
	c.cachedValue = value
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return value
}

// SetMinThreshold stores a threshold override shared across instances.
func (c *RedisClient) SetMinThreshold(ctx context.Context, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", value)
	}
	if err := c.client.Set(ctx, keyPrefix+thresholdKey, strconv.FormatFloat(value, 'f', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("redis set threshold: %w", err)
	}

	c.mu.Lock()
	c.cachedValue = value
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
