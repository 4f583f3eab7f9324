package repos

import (
	"gorm.io/gorm"

	"github.com/paperforge/paperforge-backend/internal/data/repos/bank"
	"github.com/paperforge/paperforge-backend/internal/data/repos/runs"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

type PaperRunRepo = runs.PaperRunRepo
type SessionArtifactRepo = runs.SessionArtifactRepo

type QuestionRecordRepo = bank.QuestionRecordRepo

func NewPaperRunRepo(db *gorm.DB, baseLog *logger.Logger) PaperRunRepo {
	return runs.NewPaperRunRepo(db, baseLog)
}

func NewSessionArtifactRepo(db *gorm.DB, baseLog *logger.Logger) SessionArtifactRepo {
	return runs.NewSessionArtifactRepo(db, baseLog)
}

func NewQuestionRecordRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRecordRepo {
	return bank.NewQuestionRecordRepo(db, baseLog)
}
