package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/paperforge/paperforge-backend/internal/data/repos"
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/modules/paper"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
	"github.com/paperforge/paperforge-backend/internal/platform/envutil"
	"github.com/paperforge/paperforge-backend/internal/platform/llm"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

// RunResult is the payload stored on a succeeded run and pushed with the
// completion event.
type RunResult struct {
	PaperID string  `json:"paper_id"`
	Rating  float64 `json:"rating"`
	Verdict string  `json:"verdict"`
}

// PaperGenerationService owns the run lifecycle: pre-flight validation,
// queuing, and the worker that drives a claimed run through the stage
// pipeline.
type PaperGenerationService interface {
	StartRun(ctx context.Context, req types.GenerationRequest) (*types.PaperRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*types.PaperRun, error)
	StartWorker(ctx context.Context)
}

type paperGenerationService struct {
	log      *logger.Logger
	runs     repos.PaperRunRepo
	bank     repos.QuestionRecordRepo
	store    SessionStore
	notifier ProgressNotifier
	ai       llm.Client

	pollInterval   time.Duration
	maxAttempts    int
	staleRunning   time.Duration
	heartbeatEvery time.Duration
}

func NewPaperGenerationService(
	log *logger.Logger,
	runsRepo repos.PaperRunRepo,
	bankRepo repos.QuestionRecordRepo,
	store SessionStore,
	notifier ProgressNotifier,
	ai llm.Client,
) PaperGenerationService {
	return &paperGenerationService{
		log:            log.With("service", "PaperGenerationService"),
		runs:           runsRepo,
		bank:           bankRepo,
		store:          store,
		notifier:       notifier,
		ai:             ai,
		pollInterval:   envutil.Dur("PAPER_WORKER_POLL_SECONDS", time.Second),
		maxAttempts:    envutil.Int("PAPER_RUN_MAX_ATTEMPTS", 3),
		staleRunning:   envutil.Dur("PAPER_RUN_STALE_SECONDS", 10*time.Minute),
		heartbeatEvery: envutil.Dur("PAPER_RUN_HEARTBEAT_SECONDS", 30*time.Second),
	}
}

// StartRun validates the request and queues a run. Inconsistent requests
// never produce a run row.
func (s *paperGenerationService) StartRun(ctx context.Context, req types.GenerationRequest) (*types.PaperRun, error) {
	if err := paper.ValidateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	stages := make([]types.StageState, 0, len(types.StageOrder()))
	for _, name := range types.StageOrder() {
		stages = append(stages, types.StageState{Name: name, Status: types.StagePending})
	}
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stage states: %w", err)
	}

	run := &types.PaperRun{
		ID:      uuid.New(),
		Status:  types.RunQueued,
		Stage:   types.StageBlueprint,
		Stages:  datatypes.JSON(stagesJSON),
		Request: datatypes.JSON(reqJSON),
	}
	if _, err := s.runs.Create(dbctx.Context{Ctx: ctx}, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.log.Info("run queued", "run_id", run.ID, "course", req.Syllabus.CourseCode)
	return run, nil
}

func (s *paperGenerationService) GetRun(ctx context.Context, id uuid.UUID) (*types.PaperRun, error) {
	return s.runs.GetByID(dbctx.Context{Ctx: ctx}, id)
}

// StartWorker polls for runnable runs and processes one at a time until the
// context ends.
func (s *paperGenerationService) StartWorker(ctx context.Context) {
	go func() {
		s.log.Info("paper generation worker started", "poll_interval", s.pollInterval)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("paper generation worker stopped")
				return
			case <-ticker.C:
				run, err := s.runs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, s.maxAttempts, s.staleRunning)
				if err != nil {
					s.log.Error("claim runnable failed", "error", err)
					continue
				}
				if run == nil {
					continue
				}
				s.processRun(ctx, run)
			}
		}
	}()
}

// processRun drives the claimed run through blueprint, select, and verify.
// A stage failure halts the pipeline; artifacts of completed stages stay
// readable.
func (s *paperGenerationService) processRun(ctx context.Context, run *types.PaperRun) {
	log := s.log.With("run_id", run.ID)
	dbc := dbctx.Context{Ctx: ctx}

	// Keep heartbeat_at fresh while a stage works; a single model call can
	// outlive the stale-run window and the run must not be reclaimed.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(s.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := s.runs.Heartbeat(dbctx.Context{Ctx: hbCtx}, run.ID); err != nil {
					log.Warn("heartbeat failed", "error", err)
				}
			}
		}
	}()

	stages := make([]types.StageState, 0, len(types.StageOrder()))
	if len(run.Stages) > 0 {
		if err := json.Unmarshal(run.Stages, &stages); err != nil {
			stages = stages[:0]
		}
	}
	if len(stages) == 0 {
		for _, name := range types.StageOrder() {
			stages = append(stages, types.StageState{Name: name, Status: types.StagePending})
		}
	}

	markStage := func(name, status, errMsg string) datatypes.JSON {
		now := time.Now().UTC()
		for i := range stages {
			if stages[i].Name != name {
				continue
			}
			stages[i].Status = status
			stages[i].Error = errMsg
			if status == types.StageRunning {
				stages[i].StartedAt = &now
				stages[i].FinishedAt = nil
			} else {
				stages[i].FinishedAt = &now
			}
		}
		raw, err := json.Marshal(stages)
		if err != nil {
			return run.Stages
		}
		return datatypes.JSON(raw)
	}

	fail := func(stage string, err error) {
		log.Error("run failed", "stage", stage, "error", err)
		now := time.Now()
		_, uErr := s.runs.UpdateFieldsUnlessStatus(dbc, run.ID, []string{types.RunSucceeded}, map[string]interface{}{
			"status":        types.RunFailed,
			"stage":         stage,
			"error":         err.Error(),
			"stages":        markStage(stage, types.StageFailed, err.Error()),
			"last_error_at": now,
		})
		if uErr != nil {
			log.Error("persist failure state failed", "error", uErr)
		}
		s.notifier.RunFailed(ctx, run.ID, stage, err.Error())
	}

	progress := func(stage string, pct int, msg string) {
		if err := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"stages":       markStage(stage, types.StageRunning, ""),
			"heartbeat_at": time.Now(),
		}); err != nil {
			log.Warn("persist progress failed", "error", err)
		}
		s.notifier.RunProgress(ctx, run.ID, stage, pct, msg)
	}

	complete := func(stage string) {
		if err := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
			"stages": markStage(stage, types.StageCompleted, ""),
		}); err != nil {
			log.Warn("persist stage completion failed", "error", err)
		}
		s.notifier.RunArtifact(ctx, run.ID, stage)
	}

	var req types.GenerationRequest
	if err := json.Unmarshal(run.Request, &req); err != nil {
		fail(types.StageBlueprint, fmt.Errorf("decode request: %w", err))
		return
	}

	// Stage 1: blueprint. Bank usage is advisory; a stats failure is not fatal.
	progress(types.StageBlueprint, 5, "planning the paper blueprint")
	usage := s.bankUsage(ctx, log)
	bpRes, err := paper.BuildBlueprint(ctx, paper.BlueprintDeps{Log: log, AI: s.ai}, req, usage)
	if err != nil {
		fail(types.StageBlueprint, err)
		return
	}
	for _, w := range bpRes.Warnings {
		s.notifier.RunLog(ctx, run.ID, types.StageBlueprint, w)
	}
	if err := s.store.PutArtifact(ctx, run.ID, types.StageBlueprint, bpRes); err != nil {
		fail(types.StageBlueprint, err)
		return
	}
	complete(types.StageBlueprint)
	progress(types.StageSelect, 35, "resolving question slots against the bank")

	// Stage 2: select.
	assembled, err := paper.SelectQuestions(ctx, paper.SelectDeps{Log: log, AI: s.ai, Bank: s.bank}, req, bpRes.Blueprint)
	if err != nil {
		fail(types.StageSelect, err)
		return
	}
	if err := s.store.PutArtifact(ctx, run.ID, types.StageSelect, assembled); err != nil {
		fail(types.StageSelect, err)
		return
	}
	complete(types.StageSelect)
	progress(types.StageVerify, 75, "verifying the assembled paper")

	// Stage 3: verify. Degrades internally, never fails the run.
	verdict := paper.VerifyPaper(ctx, paper.VerifyDeps{Log: log, AI: s.ai}, req, assembled)
	if err := s.store.PutArtifact(ctx, run.ID, types.StageVerify, verdict); err != nil {
		fail(types.StageVerify, err)
		return
	}
	complete(types.StageVerify)

	result := RunResult{
		PaperID: assembled.PaperID,
		Rating:  verdict.Rating,
		Verdict: verdict.Verdict,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		fail(types.StageVerify, fmt.Errorf("marshal result: %w", err))
		return
	}
	if err := s.runs.UpdateFields(dbc, run.ID, map[string]interface{}{
		"status":   types.RunSucceeded,
		"stage":    types.StageVerify,
		"progress": 100,
		"message":  "paper generation complete",
		"result":   datatypes.JSON(resultJSON),
		"error":    "",
	}); err != nil {
		log.Error("persist success state failed", "error", err)
	}
	s.notifier.RunCompleted(ctx, run.ID, result)
	log.Info("run succeeded", "paper_id", assembled.PaperID, "rating", verdict.Rating, "verdict", verdict.Verdict)
}

func (s *paperGenerationService) bankUsage(ctx context.Context, log *logger.Logger) *types.BankUsage {
	dbc := dbctx.Context{Ctx: ctx}
	total, err := s.bank.Count(dbc)
	if err != nil {
		log.Warn("bank usage stats unavailable", "error", err)
		return nil
	}
	byTopic, err := s.bank.CountByTopic(dbc)
	if err != nil {
		log.Warn("bank usage stats unavailable", "error", err)
		return nil
	}
	minYear, maxYear, err := s.bank.YearRange(dbc)
	if err != nil {
		log.Warn("bank usage stats unavailable", "error", err)
		return nil
	}
	usage := &types.BankUsage{
		TotalRecords: total,
		ByTopic:      make(map[string]int64, len(byTopic)),
		YearMin:      minYear,
		YearMax:      maxYear,
	}
	for _, tc := range byTopic {
		usage.ByTopic[tc.Topic] = tc.Count
	}
	return usage
}
