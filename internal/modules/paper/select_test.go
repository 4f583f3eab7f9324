package paper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/paperforge/paperforge-backend/internal/data/repos/bank"
	"github.com/paperforge/paperforge-backend/internal/data/repos/testutil"
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
)

func seedBank(t *testing.T, records []*types.QuestionRecord) bank.QuestionRecordRepo {
	t.Helper()
	db := testutil.DB(t)
	repo := bank.NewQuestionRecordRepo(db, testutil.Logger(t))
	if len(records) > 0 {
		if _, err := repo.Create(dbctx.Context{Ctx: context.Background()}, records); err != nil {
			t.Fatalf("seed bank: %v", err)
		}
		t.Cleanup(func() {
			for _, rec := range records {
				db.Delete(&types.QuestionRecord{}, "id = ?", rec.ID)
			}
		})
	}
	return repo
}

func selectDeps(t *testing.T, ai *fakeAI, repo bank.QuestionRecordRepo) SelectDeps {
	t.Helper()
	return SelectDeps{Log: testutil.Logger(t), AI: ai, Bank: repo}
}

func defaultFakeAI() *fakeAI {
	return &fakeAI{fn: func(system, user string) (string, error) {
		return answerByPrompt(system,
			`{"question_text": "Reworked question."}`,
			`{"question_text": "Fresh question."}`,
			"{}"), nil
	}}
}

func TestSelectExactReuseIsVerbatim(t *testing.T) {
	exact := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Define process scheduling and list scheduler types.",
		Topic:      "Process Management",
		Subtopic:   "Scheduling",
		Marks:      5,
		BloomLevel: types.BloomRemember,
		Module:     "1",
		Year:       2023,
	}
	repo := seedBank(t, []*types.QuestionRecord{exact})
	ai := defaultFakeAI()

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}

	q1 := paper.Sections[0].Questions[0]
	if q1.Method != types.MethodExactReuse {
		t.Fatalf("Q1 method = %s, want %s", q1.Method, types.MethodExactReuse)
	}
	if q1.Text != exact.Text {
		t.Fatalf("exact reuse must be verbatim, got %q", q1.Text)
	}
	if q1.SourceRecordID == nil || *q1.SourceRecordID != exact.ID {
		t.Fatalf("Q1 source record = %v, want %s", q1.SourceRecordID, exact.ID)
	}
	if paper.Stats.ExactReuse != 1 || paper.Stats.Generated != 3 {
		t.Fatalf("stats = %+v", paper.Stats)
	}
}

func TestSelectMarksAdaptedConsumesRecord(t *testing.T) {
	// Matches Q1 on topic+subtopic+level but not marks.
	nearMiss := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Explain process scheduling in detail with examples.",
		Topic:      "process  management",
		Subtopic:   "SCHEDULING",
		Marks:      10,
		BloomLevel: types.BloomRemember,
		Module:     "1",
		Year:       2022,
	}
	repo := seedBank(t, []*types.QuestionRecord{nearMiss})
	ai := defaultFakeAI()

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}

	q1 := paper.Sections[0].Questions[0]
	if q1.Method != types.MethodMarksAdapted {
		t.Fatalf("Q1 method = %s, want %s", q1.Method, types.MethodMarksAdapted)
	}
	if q1.Text != "Reworked question." {
		t.Fatalf("Q1 text = %q", q1.Text)
	}
	if q1.SourceRecordID == nil || *q1.SourceRecordID != nearMiss.ID {
		t.Fatalf("Q1 source record = %v", q1.SourceRecordID)
	}

	// Q3 needs a different subtopic, so it falls through to generation.
	q3 := paper.Sections[1].Questions[0]
	if q3.Method != types.MethodGenerated {
		t.Fatalf("Q3 method = %s, want %s", q3.Method, types.MethodGenerated)
	}
}

func TestSelectPrefersExactMatchOverLooserCandidate(t *testing.T) {
	// Both records cover Q1's topic and subtopic. The looser one is newer,
	// so it sits first in bank order, but a full match anywhere in the bank
	// must still win the slot.
	loose := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Discuss scheduling policies and their trade-offs.",
		Topic:      "Process Management",
		Subtopic:   "Scheduling",
		Marks:      10,
		BloomLevel: types.BloomEvaluate,
		Module:     "1",
		Year:       2024,
	}
	exact := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Define process scheduling and list scheduler types.",
		Topic:      "Process Management",
		Subtopic:   "Scheduling",
		Marks:      5,
		BloomLevel: types.BloomRemember,
		Module:     "1",
		Year:       2020,
	}
	repo := seedBank(t, []*types.QuestionRecord{loose, exact})
	ai := defaultFakeAI()

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}

	q1 := paper.Sections[0].Questions[0]
	if q1.Method != types.MethodExactReuse {
		t.Fatalf("Q1 method = %s, want %s", q1.Method, types.MethodExactReuse)
	}
	if q1.Text != exact.Text {
		t.Fatalf("Q1 text = %q, want the full match verbatim", q1.Text)
	}
	if q1.SourceRecordID == nil || *q1.SourceRecordID != exact.ID {
		t.Fatalf("Q1 source record = %v, want %s", q1.SourceRecordID, exact.ID)
	}
	if paper.Stats.ExactReuse != 1 {
		t.Fatalf("stats = %+v", paper.Stats)
	}
}

func TestSelectLevelAdaptedOnTopicOnlyMatch(t *testing.T) {
	topicOnly := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Describe round robin scheduling.",
		Topic:      "Process Management",
		Subtopic:   "Scheduling",
		Marks:      10,
		BloomLevel: types.BloomEvaluate,
		Module:     "1",
		Year:       2020,
	}
	repo := seedBank(t, []*types.QuestionRecord{topicOnly})
	ai := defaultFakeAI()

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}

	q1 := paper.Sections[0].Questions[0]
	if q1.Method != types.MethodLevelAdapted {
		t.Fatalf("Q1 method = %s, want %s", q1.Method, types.MethodLevelAdapted)
	}
	if q1.SourceRecordID == nil || *q1.SourceRecordID != topicOnly.ID {
		t.Fatalf("Q1 source record = %v", q1.SourceRecordID)
	}
}

func TestSelectEmptyBankGeneratesEverything(t *testing.T) {
	repo := seedBank(t, nil)
	ai := defaultFakeAI()

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}
	if paper.Stats.Generated != 4 || paper.Stats.TotalQuestions != 4 {
		t.Fatalf("stats = %+v", paper.Stats)
	}
	for _, q := range paper.Questions() {
		if q.SourceRecordID != nil {
			t.Fatalf("generated question carries a source record: %+v", q)
		}
		if q.Text == "" {
			t.Fatalf("question %s has no text", q.Number)
		}
	}
	if len(paper.ConsumedRecordIDs) != 0 {
		t.Fatalf("consumed ids = %v, want none", paper.ConsumedRecordIDs)
	}
}

func TestSelectNoRecordResolvesTwice(t *testing.T) {
	shared := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Explain semaphores.",
		Topic:      "Process Management",
		Subtopic:   "Synchronization",
		Marks:      10,
		BloomLevel: types.BloomApply,
		Module:     "1",
		Year:       2023,
	}
	repo := seedBank(t, []*types.QuestionRecord{shared})
	ai := defaultFakeAI()

	bp := testBlueprint()
	// Two slots that both match the single record exactly.
	bp.Sections[1].Questions[1] = bp.Sections[1].Questions[0]
	bp.Sections[1].Questions[1].Number = "Q4"

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), bp)
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}
	if paper.Stats.ExactReuse != 1 {
		t.Fatalf("stats = %+v, want exactly one reuse", paper.Stats)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range paper.ConsumedRecordIDs {
		if seen[id] {
			t.Fatalf("record %s consumed twice", id)
		}
		seen[id] = true
	}
}

func TestSelectSkipsBankWhenReuseNotPreferred(t *testing.T) {
	exact := &types.QuestionRecord{
		ID:         uuid.New(),
		Text:       "Define process scheduling.",
		Topic:      "Process Management",
		Subtopic:   "Scheduling",
		Marks:      5,
		BloomLevel: types.BloomRemember,
		Module:     "1",
		Year:       2023,
	}
	repo := seedBank(t, []*types.QuestionRecord{exact})
	ai := defaultFakeAI()

	bp := testBlueprint()
	for si := range bp.Sections {
		for qi := range bp.Sections[si].Questions {
			bp.Sections[si].Questions[qi].PreferReuse = false
		}
	}

	paper, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), bp)
	if err != nil {
		t.Fatalf("SelectQuestions: %v", err)
	}
	if paper.Stats.Generated != 4 || paper.Stats.ExactReuse != 0 {
		t.Fatalf("stats = %+v, bank should be skipped", paper.Stats)
	}
}

func TestSelectPropagatesModelFailure(t *testing.T) {
	repo := seedBank(t, nil)
	ai := &fakeAI{fn: func(system, user string) (string, error) {
		return "", errors.New("model unavailable")
	}}

	_, err := SelectQuestions(context.Background(), selectDeps(t, ai, repo), testRequest(), testBlueprint())
	if err == nil {
		t.Fatal("expected model failure to propagate")
	}
	if !strings.Contains(err.Error(), "Q1") {
		t.Fatalf("error should name the failing slot: %v", err)
	}
}
