// Package mirror publishes closed candles and indicator results to Redis
// pub/sub channels for out-of-process subscribers. Publishing is wrapped
// in a circuit breaker: while Redis is unreachable the mirror drops and
// counts rather than backing up the hot path.
package mirror

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"marketflow/internal/model"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
	publishTimeout      = 2 * time.Second
)

// Config configures the Redis mirror.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Mirror is a publish-only Redis fan-out.
type Mirror struct {
	client  *goredis.Client
	breaker *breaker
	dropped atomic.Uint64
}

// New connects and pings Redis. The mirror is optional infrastructure:
// callers treat a nil *Mirror as disabled.
func New(cfg Config) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	m := &Mirror{
		client:  client,
		breaker: newBreaker(breakerMaxFailures, breakerResetTimeout),
	}
	m.breaker.onStateChange = func(from, to BreakerState) {
		log.Printf("[mirror] breaker %s -> %s", from, to)
	}
	log.Printf("[mirror] connected to %s", cfg.Addr)
	return m, nil
}

// PublishCandle mirrors one closed candle to
// pub:candle:{interval}:{provider}:{symbol}.
func (m *Mirror) PublishCandle(ctx context.Context, c *model.Candle) {
	if m == nil || !c.Closed {
		return
	}
	channel := "pub:candle:" + c.Interval + ":" + c.Provider + ":" + c.Symbol
	m.publish(ctx, channel, c.JSON())
}

// PublishIndicator mirrors one serialized indicator update to
// pub:ind:{instanceKey}.
func (m *Mirror) PublishIndicator(ctx context.Context, instanceKey string, payload []byte) {
	if m == nil {
		return
	}
	m.publish(ctx, "pub:ind:"+instanceKey, payload)
}

func (m *Mirror) publish(ctx context.Context, channel string, payload []byte) {
	err := m.breaker.execute(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return m.client.Publish(pubCtx, channel, payload).Err()
	})
	if err != nil {
		m.dropped.Add(1)
		if err != ErrCircuitOpen {
			log.Printf("[mirror] publish %s failed: %v", channel, err)
		}
	}
}

// BreakerState reports the publish breaker state for health checks.
func (m *Mirror) BreakerState() string {
	if m == nil {
		return "disabled"
	}
	return m.breaker.currentState().String()
}

// Dropped returns the number of publishes lost to errors or an open breaker.
func (m *Mirror) Dropped() uint64 {
	if m == nil {
		return 0
	}
	return m.dropped.Load()
}

func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
