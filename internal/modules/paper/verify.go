package paper

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/httpx"
	"github.com/paperforge/paperforge-backend/internal/platform/jsonx"
	"github.com/paperforge/paperforge-backend/internal/platform/llm"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

const (
	// Per-level slack before a distribution mismatch counts against the paper.
	bloomTolerance = 0.07
	bloomPassScore = 0.7

	acceptThreshold    = 8.0
	deterministicShare = 0.6
	qualitativeShare   = 0.4

	judgeMaxAttempts = 3
)

// Check names.
const (
	checkMarksTotal       = "marks_total"
	checkQuestionCount    = "question_count"
	checkQuestionText     = "question_text"
	checkSectionStructure = "section_structure"
	checkAllowedMarks     = "allowed_marks"
	checkModuleWeightage  = "module_weightage"
	checkBloomBalance     = "bloom_balance"
	checkDuplicateTopics  = "duplicate_topics"
)

var criticalChecks = map[string]bool{
	checkMarksTotal:    true,
	checkQuestionCount: true,
	checkQuestionText:  true,
}

type VerifyDeps struct {
	Log *logger.Logger
	AI  llm.Client
}

// VerifyPaper runs the structural checks and the model review, then blends
// them into one rating. The stage never fails: if the reviewer is
// unreachable the deterministic score stands alone.
func VerifyPaper(ctx context.Context, deps VerifyDeps, req types.GenerationRequest, paper *types.AssembledPaper) *types.Verdict {
	log := deps.Log.With("step", "VerifyPaper")

	checks, bloomScore, actualDist := runChecks(req, paper)

	criticalPass := true
	softPass, softTotal := 0, 0
	var issues []string
	for _, c := range checks {
		if !c.Pass {
			issues = append(issues, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
		if criticalChecks[c.Name] {
			if !c.Pass {
				criticalPass = false
			}
			continue
		}
		softTotal++
		if c.Pass {
			softPass++
		}
	}

	base := 2.0
	if criticalPass {
		base = 5.0
	}
	det := base
	if softTotal > 0 {
		det += 5.0 * float64(softPass) / float64(softTotal)
	}

	qual, qualBreakdown, judgeIssues, suggestions, err := judgePaper(ctx, deps, req, paper, checks)
	if err != nil {
		log.Warn("model review unavailable, using deterministic score", "error", err)
		qual = det
	}
	issues = append(issues, judgeIssues...)

	rating := deterministicShare*det + qualitativeShare*qual
	rating = math.Round(rating*100) / 100
	if rating < 0 {
		rating = 0
	}
	if rating > 10 {
		rating = 10
	}

	verdict := &types.Verdict{
		Rating:  rating,
		Verdict: types.VerdictRejected,
		Scores: types.ScoreBreakdown{
			Deterministic:           det,
			Qualitative:             qual,
			QualitativeBreakdown:    qualBreakdown,
			BloomScore:              bloomScore,
			ActualBloomDistribution: actualDist,
			Checks:                  checks,
		},
	}
	if rating >= acceptThreshold {
		verdict.Verdict = types.VerdictAccepted
		verdict.Summary = fmt.Sprintf("Paper accepted with rating %.2f/10.", rating)
	} else {
		verdict.Summary = fmt.Sprintf("Paper rejected with rating %.2f/10.", rating)
		verdict.Issues = issues
		verdict.Suggestions = suggestions
	}

	log.Info("verification complete", "rating", rating, "verdict", verdict.Verdict)
	return verdict
}

func runChecks(req types.GenerationRequest, paper *types.AssembledPaper) ([]types.CheckResult, float64, map[string]float64) {
	pattern := req.Pattern
	questions := paper.Questions()

	var checks []types.CheckResult
	add := func(name string, pass bool, detail string) {
		if pass {
			detail = ""
		}
		checks = append(checks, types.CheckResult{Name: name, Pass: pass, Detail: detail})
	}

	gotMarks := 0
	for _, q := range questions {
		gotMarks += q.Marks
	}
	add(checkMarksTotal, gotMarks == pattern.TotalMarks,
		fmt.Sprintf("paper totals %d marks, pattern requires %d", gotMarks, pattern.TotalMarks))

	add(checkQuestionCount, len(questions) == pattern.TotalQuestions,
		fmt.Sprintf("paper has %d questions, pattern requires %d", len(questions), pattern.TotalQuestions))

	missingText := 0
	for _, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			missingText++
		}
	}
	add(checkQuestionText, missingText == 0,
		fmt.Sprintf("%d questions have no text", missingText))

	add(checkSectionStructure, sectionStructureOK(pattern, paper),
		"sections do not mirror the pattern")

	allowed := map[int]bool{}
	for _, m := range pattern.AllowedMarks {
		allowed[m] = true
	}
	badMarks := 0
	for _, q := range questions {
		if !allowed[q.Marks] {
			badMarks++
		}
	}
	add(checkAllowedMarks, badMarks == 0,
		fmt.Sprintf("%d questions use a non-allowed marks weight", badMarks))

	add(checkModuleWeightage, moduleWeightageOK(pattern, questions),
		fmt.Sprintf("a module's marks share is outside [%.2f, %.2f]", pattern.ModuleWeightRange.Min, pattern.ModuleWeightRange.Max))

	bloomScore, actualDist := bloomBalance(req, questions)
	add(checkBloomBalance, bloomScore >= bloomPassScore,
		fmt.Sprintf("cognitive level balance score %.2f is below %.2f", bloomScore, bloomPassScore))

	add(checkDuplicateTopics, noDuplicateTopics(paper),
		"the same topic and subtopic pair appears more than once")

	return checks, bloomScore, actualDist
}

func sectionStructureOK(pattern types.PaperPattern, paper *types.AssembledPaper) bool {
	if len(paper.Sections) != len(pattern.Sections) {
		return false
	}
	for i, sp := range pattern.Sections {
		sec := paper.Sections[i]
		if !strings.EqualFold(strings.TrimSpace(sec.Name), strings.TrimSpace(sp.Name)) {
			return false
		}
		if len(sec.Questions) != sp.QuestionCount {
			return false
		}
		for _, q := range sec.Questions {
			if q.Marks != sp.MarksPerQuestion {
				return false
			}
		}
	}
	return true
}

func moduleWeightageOK(pattern types.PaperPattern, questions []types.ResolvedQuestion) bool {
	total := 0
	byModule := map[string]int{}
	for _, q := range questions {
		total += q.Marks
		byModule[q.Module] += q.Marks
	}
	if total == 0 {
		return false
	}
	for _, marks := range byModule {
		share := float64(marks) / float64(total)
		if share < pattern.ModuleWeightRange.Min-1e-9 || share > pattern.ModuleWeightRange.Max+1e-9 {
			return false
		}
	}
	return true
}

// bloomBalance compares the realized level distribution, by marks share,
// against the target. Only levels named in the target are judged; each one
// deviating beyond the tolerance costs an equal slice of the score.
func bloomBalance(req types.GenerationRequest, questions []types.ResolvedQuestion) (float64, map[string]float64) {
	target := req.BloomDistribution
	if len(target) == 0 {
		target = defaultBloomDistribution()
	}

	totalMarks := 0
	for _, q := range questions {
		totalMarks += q.Marks
	}
	actual := map[string]float64{}
	if totalMarks > 0 {
		for _, q := range questions {
			actual[strings.ToLower(q.BloomLevel)] += float64(q.Marks) / float64(totalMarks)
		}
	}

	deviations := 0
	for lvl, want := range target {
		if math.Abs(actual[lvl]-want) > bloomTolerance {
			deviations++
		}
	}
	denom := len(target)
	if denom < 1 {
		denom = 1
	}
	score := 1.0 - float64(deviations)/float64(denom)
	if score < 0 {
		score = 0
	}
	return score, actual
}

func noDuplicateTopics(paper *types.AssembledPaper) bool {
	seen := map[string]bool{}
	for _, q := range paper.Questions() {
		key := normKey(q.Topic) + "|" + normKey(q.Subtopic)
		if seen[key] {
			return false
		}
		seen[key] = true
	}
	return true
}

type judgeReview struct {
	QuestionClarity   float64  `json:"question_clarity"`
	SyllabusRelevance float64  `json:"syllabus_relevance"`
	DifficultyFlow    float64  `json:"difficulty_flow"`
	TeacherAlignment  float64  `json:"teacher_alignment"`
	OverallCoherence  float64  `json:"overall_coherence"`
	Issues            []string `json:"issues"`
	Suggestions       []string `json:"suggestions"`
}

// judgePaper asks the model to review the assembled paper. Transport errors
// retry with linear waits; a final failure is reported to the caller, never
// fatal.
func judgePaper(ctx context.Context, deps VerifyDeps, req types.GenerationRequest, paper *types.AssembledPaper, checks []types.CheckResult) (float64, map[string]float64, []string, []string, error) {
	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	system, user := promptJudge(string(paperJSON), req, checks)

	var lastErr error
	for attempt := 0; attempt < judgeMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, nil, nil, err
		}

		raw, err := deps.AI.GenerateText(ctx, system, user)
		if err != nil {
			lastErr = err
			if !httpx.IsRetryableError(err) {
				break
			}
			wait := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return 0, nil, nil, nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		var review judgeReview
		if err := jsonx.DecodeObject(raw, &review); err != nil {
			lastErr = err
			continue
		}

		breakdown := map[string]float64{
			"question_clarity":   clampScore(review.QuestionClarity),
			"syllabus_relevance": clampScore(review.SyllabusRelevance),
			"difficulty_flow":    clampScore(review.DifficultyFlow),
			"teacher_alignment":  clampScore(review.TeacherAlignment),
			"overall_coherence":  clampScore(review.OverallCoherence),
		}
		sum := 0.0
		for _, v := range breakdown {
			sum += v
		}
		return sum / float64(len(breakdown)), breakdown, review.Issues, review.Suggestions, nil
	}
	return 0, nil, nil, nil, lastErr
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
