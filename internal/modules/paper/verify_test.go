package paper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paperforge/paperforge-backend/internal/data/repos/testutil"
	types "github.com/paperforge/paperforge-backend/internal/domain"
)

// conformingPaper satisfies every structural check for testRequest.
func conformingPaper() *types.AssembledPaper {
	paper := &types.AssembledPaper{
		PaperID:    "paper-1",
		CourseCode: "CS301",
		CourseName: "Operating Systems",
		ExamType:   "Unit Test",
		TotalMarks: 30,
	}
	for _, sec := range testBlueprint().Sections {
		out := types.PaperSection{Name: sec.Name}
		for i, slot := range sec.Questions {
			out.Questions = append(out.Questions, types.ResolvedQuestion{
				ID:         fmt.Sprintf("%s-%d", sec.Name, i),
				Number:     slot.Number,
				Module:     slot.Module,
				Topic:      slot.Topic,
				Subtopic:   slot.Subtopic,
				Marks:      slot.Marks,
				BloomLevel: slot.BloomLevel,
				Text:       "What is " + slot.Subtopic + "?",
				Method:     types.MethodGenerated,
			})
		}
		paper.Sections = append(paper.Sections, out)
	}
	return paper
}

const judgeNines = `{
  "question_clarity": 9,
  "syllabus_relevance": 9,
  "difficulty_flow": 9,
  "teacher_alignment": 9,
  "overall_coherence": 9,
  "issues": [],
  "suggestions": []
}`

func TestVerifyAcceptsConformingPaper(t *testing.T) {
	ai := &fakeAI{fn: func(system, user string) (string, error) {
		return judgeNines, nil
	}}

	verdict := VerifyPaper(context.Background(), VerifyDeps{Log: testutil.Logger(t), AI: ai}, testRequest(), conformingPaper())

	if verdict.Scores.Deterministic != 10 {
		t.Fatalf("deterministic = %.2f, want 10", verdict.Scores.Deterministic)
	}
	if verdict.Scores.Qualitative != 9 {
		t.Fatalf("qualitative = %.2f, want 9", verdict.Scores.Qualitative)
	}
	// 0.6*10 + 0.4*9
	if verdict.Rating != 9.6 {
		t.Fatalf("rating = %.2f, want 9.6", verdict.Rating)
	}
	if verdict.Verdict != types.VerdictAccepted {
		t.Fatalf("verdict = %s", verdict.Verdict)
	}
	if len(verdict.Issues) != 0 || len(verdict.Suggestions) != 0 {
		t.Fatalf("accepted paper must not carry issues: %+v", verdict)
	}
	for _, c := range verdict.Scores.Checks {
		if !c.Pass {
			t.Fatalf("check %s failed on a conforming paper: %s", c.Name, c.Detail)
		}
	}
}

func TestVerifyCriticalFailureCapsScore(t *testing.T) {
	ai := &fakeAI{fn: func(system, user string) (string, error) {
		return judgeNines, nil
	}}

	paper := conformingPaper()
	// Break the marks total; section structure and allowed marks break with it.
	paper.Sections[1].Questions[0].Marks = 7

	verdict := VerifyPaper(context.Background(), VerifyDeps{Log: testutil.Logger(t), AI: ai}, testRequest(), paper)

	// base 2 + 5 * 3/5 soft passes
	if verdict.Scores.Deterministic != 5 {
		t.Fatalf("deterministic = %.2f, want 5", verdict.Scores.Deterministic)
	}
	if verdict.Verdict != types.VerdictRejected {
		t.Fatalf("verdict = %s, want rejected", verdict.Verdict)
	}
	if len(verdict.Issues) == 0 {
		t.Fatal("rejected paper must list issues")
	}

	byName := map[string]types.CheckResult{}
	for _, c := range verdict.Scores.Checks {
		byName[c.Name] = c
	}
	if byName[checkMarksTotal].Pass {
		t.Fatal("marks_total should fail")
	}
	if byName[checkQuestionCount].Pass != true || byName[checkQuestionText].Pass != true {
		t.Fatal("count and text checks should still pass")
	}
}

func TestVerifyJudgeFailureFallsBackToDeterministic(t *testing.T) {
	ai := &fakeAI{fn: func(system, user string) (string, error) {
		return "", errors.New("model offline")
	}}

	verdict := VerifyPaper(context.Background(), VerifyDeps{Log: testutil.Logger(t), AI: ai}, testRequest(), conformingPaper())

	if verdict.Scores.Qualitative != verdict.Scores.Deterministic {
		t.Fatalf("qualitative = %.2f, want deterministic %.2f", verdict.Scores.Qualitative, verdict.Scores.Deterministic)
	}
	if verdict.Rating != 10 {
		t.Fatalf("rating = %.2f, want 10", verdict.Rating)
	}
	if verdict.Verdict != types.VerdictAccepted {
		t.Fatalf("verdict = %s", verdict.Verdict)
	}
	// Non-retryable failure should not burn all judge attempts.
	if ai.calls != 1 {
		t.Fatalf("judge called %d times, want 1", ai.calls)
	}
}

func TestSectionStructureRequiresPatternNames(t *testing.T) {
	req := testRequest()

	paper := conformingPaper()
	if !sectionStructureOK(req.Pattern, paper) {
		t.Fatal("conforming paper should mirror the pattern sections")
	}

	// Same shape, wrong name: the named section from the pattern is missing.
	paper.Sections[0].Name = "Part One"
	if sectionStructureOK(req.Pattern, paper) {
		t.Fatal("renamed section should fail the structure check")
	}

	// Case and surrounding space are not significant.
	paper = conformingPaper()
	paper.Sections[0].Name = "  section a "
	if !sectionStructureOK(req.Pattern, paper) {
		t.Fatal("name match should ignore case and surrounding space")
	}
}

func TestVerifyIsDeterministicForSameInput(t *testing.T) {
	ai := &fakeAI{fn: func(system, user string) (string, error) {
		return judgeNines, nil
	}}
	deps := VerifyDeps{Log: testutil.Logger(t), AI: ai}

	first := VerifyPaper(context.Background(), deps, testRequest(), conformingPaper())
	second := VerifyPaper(context.Background(), deps, testRequest(), conformingPaper())
	if first.Rating != second.Rating || first.Verdict != second.Verdict {
		t.Fatalf("verdicts differ: %.2f/%s vs %.2f/%s", first.Rating, first.Verdict, second.Rating, second.Verdict)
	}
}

func TestBloomBalanceScoring(t *testing.T) {
	req := testRequest()
	paper := conformingPaper()

	score, actual := bloomBalance(req, paper.Questions())
	if score != 1.0 {
		t.Fatalf("score = %.2f, want 1.0 for a matching distribution", score)
	}
	if actual[types.BloomRemember] != 5.0/30.0 {
		t.Fatalf("actual distribution wrong: %v", actual)
	}

	// Pile everything on one level: all four targeted levels now deviate
	// past the tolerance, so the score bottoms out.
	for si := range paper.Sections {
		for qi := range paper.Sections[si].Questions {
			paper.Sections[si].Questions[qi].BloomLevel = types.BloomRemember
		}
	}
	score, _ = bloomBalance(req, paper.Questions())
	if score != 0 {
		t.Fatalf("score = %.4f, want 0 when every targeted level deviates", score)
	}
}

func TestBloomBalanceScoresOverTargetedLevelsOnly(t *testing.T) {
	req := testRequest()
	req.BloomDistribution = map[string]float64{
		types.BloomRemember:   0.33,
		types.BloomUnderstand: 0.33,
		types.BloomApply:      0.34,
	}

	questions := []types.ResolvedQuestion{
		{Marks: 45, BloomLevel: types.BloomRemember, Text: "q1"},
		{Marks: 28, BloomLevel: types.BloomUnderstand, Text: "q2"},
		{Marks: 27, BloomLevel: types.BloomApply, Text: "q3"},
	}

	// Only remember drifts past the tolerance; one deviation out of three
	// targeted levels. Levels outside the target must not count.
	score, _ := bloomBalance(req, questions)
	want := 1.0 - 1.0/3.0
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %.4f, want %.4f", score, want)
	}
	if score >= bloomPassScore {
		t.Fatalf("score %.4f should fall below the %.2f pass mark", score, bloomPassScore)
	}
}
