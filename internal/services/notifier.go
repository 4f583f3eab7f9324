package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paperforge/paperforge-backend/internal/platform/logger"
	"github.com/paperforge/paperforge-backend/internal/sse"
)

// ProgressNotifier publishes run lifecycle events to the run's channel.
type ProgressNotifier interface {
	RunProgress(ctx context.Context, runID uuid.UUID, stage string, progress int, message string)
	RunLog(ctx context.Context, runID uuid.UUID, stage string, message string)
	RunArtifact(ctx context.Context, runID uuid.UUID, stage string)
	RunCompleted(ctx context.Context, runID uuid.UUID, result any)
	RunFailed(ctx context.Context, runID uuid.UUID, stage string, errMsg string)
}

type progressNotifier struct {
	log     *logger.Logger
	emitter SSEEmitter
}

func NewProgressNotifier(log *logger.Logger, emitter SSEEmitter) ProgressNotifier {
	return &progressNotifier{
		log:     log.With("service", "ProgressNotifier"),
		emitter: emitter,
	}
}

func (n *progressNotifier) emit(ctx context.Context, runID uuid.UUID, event sse.SSEEvent, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["run_id"] = runID.String()
	data["ts"] = time.Now().UTC().Format(time.RFC3339)
	n.emitter.Emit(ctx, sse.SSEMessage{
		Channel: runID.String(),
		Event:   event,
		Data:    data,
	})
}

func (n *progressNotifier) RunProgress(ctx context.Context, runID uuid.UUID, stage string, progress int, message string) {
	n.emit(ctx, runID, sse.SSEEventRunProgress, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *progressNotifier) RunLog(ctx context.Context, runID uuid.UUID, stage string, message string) {
	n.emit(ctx, runID, sse.SSEEventRunLog, map[string]any{
		"stage":   stage,
		"message": message,
	})
}

func (n *progressNotifier) RunArtifact(ctx context.Context, runID uuid.UUID, stage string) {
	n.emit(ctx, runID, sse.SSEEventRunArtifact, map[string]any{
		"stage": stage,
	})
}

func (n *progressNotifier) RunCompleted(ctx context.Context, runID uuid.UUID, result any) {
	n.emit(ctx, runID, sse.SSEEventRunCompleted, map[string]any{
		"result": result,
	})
}

func (n *progressNotifier) RunFailed(ctx context.Context, runID uuid.UUID, stage string, errMsg string) {
	n.emit(ctx, runID, sse.SSEEventRunFailed, map[string]any{
		"stage": stage,
		"error": errMsg,
	})
}
