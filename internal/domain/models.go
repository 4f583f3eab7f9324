package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaperRun is one generation session: a fixed stage pipeline
// (blueprint → select → verify) tracked row-level so the worker can claim,
// heartbeat, and resume-safe-fail runs. The run id doubles as the progress
// channel key.
type PaperRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status      string         `gorm:"index" json:"status"`
	Stage       string         `json:"stage"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	Stages      datatypes.JSON `json:"stages"`
	Request     datatypes.JSON `json:"request"`
	Result      datatypes.JSON `json:"result,omitempty"`
	LockedAt    *time.Time     `json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `json:"last_error_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (PaperRun) TableName() string { return "paper_runs" }

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Stage statuses.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// Pipeline stage names, in execution order.
const (
	StageBlueprint = "blueprint"
	StageSelect    = "select"
	StageVerify    = "verify"
)

func StageOrder() []string {
	return []string{StageBlueprint, StageSelect, StageVerify}
}

// StageState is the per-stage entry serialized into PaperRun.Stages.
type StageState struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// SessionArtifact is one stage's output blob for one run. Overwrite semantics:
// re-running a stage replaces the previous payload.
type SessionArtifact struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_session_artifacts_run_stage" json:"run_id"`
	Stage     string         `gorm:"uniqueIndex:idx_session_artifacts_run_stage" json:"stage"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (SessionArtifact) TableName() string { return "session_artifacts" }

// QuestionRecord is one previously-used exam question in the bank. The bank
// is read-only for the duration of a selection pass.
type QuestionRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Text       string    `json:"text"`
	Topic      string    `gorm:"index" json:"topic"`
	Subtopic   string    `json:"subtopic"`
	Marks      int       `json:"marks"`
	BloomLevel string    `json:"bloom_level"`
	Module     string    `json:"module"`
	Year       int       `json:"year"`
	CreatedAt  time.Time `json:"created_at"`
}

func (QuestionRecord) TableName() string { return "question_records" }
