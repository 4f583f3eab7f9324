package bank

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

// TopicCount is one row of the per-topic usage summary.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int64  `json:"count"`
}

type QuestionRecordRepo interface {
	Create(dbc dbctx.Context, records []*types.QuestionRecord) ([]*types.QuestionRecord, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.QuestionRecord, error)
	// ListBank returns the whole bank in deterministic order: newest year
	// first, id ascending within a year.
	ListBank(dbc dbctx.Context) ([]*types.QuestionRecord, error)
	Count(dbc dbctx.Context) (int64, error)
	CountByTopic(dbc dbctx.Context) ([]TopicCount, error)
	// YearRange returns the oldest and newest provenance years in the bank.
	// Both are zero when the bank is empty.
	YearRange(dbc dbctx.Context) (int, int, error)
}

type questionRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRecordRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRecordRepo {
	return &questionRecordRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionRecordRepo"),
	}
}

func (r *questionRecordRepo) Create(dbc dbctx.Context, records []*types.QuestionRecord) ([]*types.QuestionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(records) == 0 {
		return []*types.QuestionRecord{}, nil
	}
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *questionRecordRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.QuestionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionRecord
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRecordRepo) ListBank(dbc dbctx.Context) ([]*types.QuestionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionRecord
	if err := transaction.WithContext(dbc.Ctx).
		Order("year DESC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRecordRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.QuestionRecord{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *questionRecordRepo) YearRange(dbc dbctx.Context) (int, int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row struct {
		MinYear *int
		MaxYear *int
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.QuestionRecord{}).
		Select("min(year) as min_year, max(year) as max_year").
		Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	if row.MinYear == nil || row.MaxYear == nil {
		return 0, 0, nil
	}
	return *row.MinYear, *row.MaxYear, nil
}

func (r *questionRecordRepo) CountByTopic(dbc dbctx.Context) ([]TopicCount, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []TopicCount
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.QuestionRecord{}).
		Select("topic, count(*) as count").
		Group("topic").
		Order("count DESC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
