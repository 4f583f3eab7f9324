package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/paperforge/paperforge-backend/internal/data/repos"
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// SessionStore persists each stage's output as a JSON artifact keyed by
// (run, stage). Writing the same stage twice overwrites.
type SessionStore interface {
	PutArtifact(ctx context.Context, runID uuid.UUID, stage string, v any) error
	GetArtifact(ctx context.Context, runID uuid.UUID, stage string, out any) error
	GetArtifactRaw(ctx context.Context, runID uuid.UUID, stage string) ([]byte, error)
	ListStages(ctx context.Context, runID uuid.UUID) ([]string, error)
}

type sessionStore struct {
	log       *logger.Logger
	artifacts repos.SessionArtifactRepo
}

func NewSessionStore(log *logger.Logger, artifacts repos.SessionArtifactRepo) SessionStore {
	return &sessionStore{
		log:       log.With("service", "SessionStore"),
		artifacts: artifacts,
	}
}

func (s *sessionStore) PutArtifact(ctx context.Context, runID uuid.UUID, stage string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s artifact: %w", stage, err)
	}
	_, err = s.artifacts.Upsert(dbctx.Context{Ctx: ctx}, &types.SessionArtifact{
		RunID:   runID,
		Stage:   stage,
		Payload: datatypes.JSON(raw),
	})
	if err != nil {
		return fmt.Errorf("persist %s artifact: %w", stage, err)
	}
	return nil
}

func (s *sessionStore) GetArtifact(ctx context.Context, runID uuid.UUID, stage string, out any) error {
	raw, err := s.GetArtifactRaw(ctx, runID, stage)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s artifact: %w", stage, err)
	}
	return nil
}

func (s *sessionStore) GetArtifactRaw(ctx context.Context, runID uuid.UUID, stage string) ([]byte, error) {
	artifact, err := s.artifacts.Get(dbctx.Context{Ctx: ctx}, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("load %s artifact: %w", stage, err)
	}
	if artifact == nil {
		return nil, ErrArtifactNotFound
	}
	return []byte(artifact.Payload), nil
}

func (s *sessionStore) ListStages(ctx context.Context, runID uuid.UUID) ([]string, error) {
	all, err := s.artifacts.ListByRun(dbctx.Context{Ctx: ctx}, runID)
	if err != nil {
		return nil, err
	}
	stages := make([]string, 0, len(all))
	for _, a := range all {
		stages = append(stages, a.Stage)
	}
	return stages, nil
}
