package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/paperforge/paperforge-backend/internal/platform/logger"
	"github.com/paperforge/paperforge-backend/internal/sse"
)

func TestRedisSSEBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_CHANNEL_PREFIX", "sse-test:runs")

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	bus, err := NewRedisSSEBus(log)
	if err != nil {
		t.Fatalf("NewRedisSSEBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	received := make(chan sse.SSEMessage, 1)
	if err := bus.StartForwarder(ctx, func(m sse.SSEMessage) {
		received <- m
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	want := sse.SSEMessage{
		Channel: "run-123",
		Event:   sse.SSEEventRunProgress,
		Data:    map[string]any{"progress": float64(40)},
	}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		// The run id rides on the redis channel name and must be
		// reconstructed on the far side.
		if got.Channel != want.Channel || got.Event != want.Event {
			t.Fatalf("forwarded message mismatch: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}

	// Unknown events on the pattern are dropped, not forwarded.
	if err := bus.Publish(ctx, sse.SSEMessage{Channel: "run-123", Event: "SomethingElse"}); err != nil {
		t.Fatalf("Publish unknown event: %v", err)
	}
	if err := bus.Publish(ctx, sse.SSEMessage{
		Channel: "run-456",
		Event:   sse.SSEEventRunCompleted,
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-received:
		if got.Event != sse.SSEEventRunCompleted || got.Channel != "run-456" {
			t.Fatalf("unknown event should be dropped, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second forwarded message")
	}
}

func TestRedisSSEBusRejectsChannellessPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	bus, err := NewRedisSSEBus(log)
	if err != nil {
		t.Fatalf("NewRedisSSEBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	if err := bus.Publish(context.Background(), sse.SSEMessage{Event: sse.SSEEventRunLog}); err == nil {
		t.Fatal("expected error for a message without a run channel")
	}
}

func TestNewRedisSSEBusRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if _, err := NewRedisSSEBus(log); err == nil {
		t.Fatal("expected error without REDIS_ADDR")
	}
}
