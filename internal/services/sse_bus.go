package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paperforge/paperforge-backend/internal/platform/logger"
	"github.com/paperforge/paperforge-backend/internal/sse"
)

// SSEBus fans run events out across replicas via redis pub/sub. Every run
// gets its own redis channel under a shared prefix, so the run id travels in
// the channel name and the payload stays event+data only.
type SSEBus interface {
	Publish(ctx context.Context, msg sse.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m sse.SSEMessage)) error
	Close() error
}

// runEvents is the set the forwarder will relay; anything else on the
// pattern is dropped.
var runEvents = map[sse.SSEEvent]bool{
	sse.SSEEventRunProgress:  true,
	sse.SSEEventRunLog:       true,
	sse.SSEEventRunArtifact:  true,
	sse.SSEEventRunCompleted: true,
	sse.SSEEventRunFailed:    true,
}

type busEnvelope struct {
	Event sse.SSEEvent `json:"event"`
	Data  any          `json:"data,omitempty"`
}

type redisSSEBus struct {
	log    *logger.Logger
	rdb    *redis.Client
	prefix string
}

func NewRedisSSEBus(log *logger.Logger) (SSEBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_CHANNEL_PREFIX"))
	if prefix == "" {
		prefix = "paperforge:runs"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisSSEBus{
		log:    log.With("service", "RedisSSEBus"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (b *redisSSEBus) runChannel(runID string) string {
	return b.prefix + ":" + runID
}

func (b *redisSSEBus) Publish(ctx context.Context, msg sse.SSEMessage) error {
	if strings.TrimSpace(msg.Channel) == "" {
		return fmt.Errorf("publish: message has no run channel")
	}
	raw, err := json.Marshal(busEnvelope{Event: msg.Event, Data: msg.Data})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.runChannel(msg.Channel), raw).Err()
}

func (b *redisSSEBus) StartForwarder(ctx context.Context, onMsg func(m sse.SSEMessage)) error {
	sub := b.rdb.PSubscribe(ctx, b.runChannel("*"))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				runID := strings.TrimPrefix(m.Channel, b.prefix+":")
				if runID == "" || runID == m.Channel {
					continue
				}
				var env busEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.log.Warn("bad redis SSE payload", "run_id", runID, "error", err)
					continue
				}
				if !runEvents[env.Event] {
					b.log.Warn("unknown run event dropped", "run_id", runID, "event", env.Event)
					continue
				}
				onMsg(sse.SSEMessage{Channel: runID, Event: env.Event, Data: env.Data})
			}
		}
	}()

	return nil
}

func (b *redisSSEBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
