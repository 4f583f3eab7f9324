package db

import (
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Generation runs + artifacts
		// =========================
		&types.PaperRun{},
		&types.SessionArtifact{},

		// =========================
		// Question bank
		// =========================
		&types.QuestionRecord{},
	)
}
