package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

type SessionArtifactRepo interface {
	Upsert(dbc dbctx.Context, artifact *types.SessionArtifact) (*types.SessionArtifact, error)
	Get(dbc dbctx.Context, runID uuid.UUID, stage string) (*types.SessionArtifact, error)
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.SessionArtifact, error)
}

type sessionArtifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionArtifactRepo(db *gorm.DB, baseLog *logger.Logger) SessionArtifactRepo {
	return &sessionArtifactRepo{
		db:  db,
		log: baseLog.With("repo", "SessionArtifactRepo"),
	}
}

// Upsert replaces the payload when the (run, stage) pair already exists.
func (r *sessionArtifactRepo) Upsert(dbc dbctx.Context, artifact *types.SessionArtifact) (*types.SessionArtifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if artifact == nil {
		return nil, nil
	}
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	now := time.Now()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "stage"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(artifact).Error
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (r *sessionArtifactRepo) Get(dbc dbctx.Context, runID uuid.UUID, stage string) (*types.SessionArtifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == uuid.Nil || stage == "" {
		return nil, nil
	}
	var artifact types.SessionArtifact
	err := transaction.WithContext(dbc.Ctx).
		Where("run_id = ? AND stage = ?", runID, stage).
		Limit(1).
		Find(&artifact).Error
	if err != nil {
		return nil, err
	}
	if artifact.ID == uuid.Nil {
		return nil, nil
	}
	return &artifact, nil
}

func (r *sessionArtifactRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.SessionArtifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SessionArtifact
	if runID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("stage ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
