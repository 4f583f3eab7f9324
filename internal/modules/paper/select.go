package paper

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/paperforge/paperforge-backend/internal/data/repos"
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
	"github.com/paperforge/paperforge-backend/internal/platform/jsonx"
	"github.com/paperforge/paperforge-backend/internal/platform/llm"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

type SelectDeps struct {
	Log  *logger.Logger
	AI   llm.Client
	Bank repos.QuestionRecordRepo
}

type questionText struct {
	QuestionText string `json:"question_text"`
}

// SelectQuestions resolves every blueprint slot against the historical bank,
// tightest match first:
//
//	tier 1: topic+subtopic+marks+level  -> verbatim reuse
//	tier 2: topic+subtopic+level        -> marks-adapted rewrite
//	tier 3: topic+subtopic              -> level-adapted rewrite
//	tier 4: no match                    -> fresh generation
//
// A bank record resolves at most one slot per paper. Slots not flagged for
// reuse skip the bank entirely.
func SelectQuestions(ctx context.Context, deps SelectDeps, req types.GenerationRequest, bp *types.Blueprint) (*types.AssembledPaper, error) {
	log := deps.Log.With("step", "SelectQuestions")

	records, err := deps.Bank.ListBank(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	log.Info("question bank loaded", "records", len(records))

	used := map[uuid.UUID]bool{}
	paper := &types.AssembledPaper{
		PaperID:         uuid.New().String(),
		CourseCode:      req.Syllabus.CourseCode,
		CourseName:      req.Syllabus.CourseName,
		ExamType:        req.Pattern.ExamType,
		TotalMarks:      req.Pattern.TotalMarks,
		DurationMinutes: req.Pattern.DurationMinutes,
	}

	for _, sec := range bp.Sections {
		out := types.PaperSection{Name: sec.Name, Description: sec.Description}
		for _, slot := range sec.Questions {
			resolved, err := resolveSlot(ctx, deps, req, slot, records, used)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", slot.Number, err)
			}
			out.Questions = append(out.Questions, *resolved)
			paper.Stats.TotalQuestions++
			switch resolved.Method {
			case types.MethodExactReuse:
				paper.Stats.ExactReuse++
			case types.MethodMarksAdapted:
				paper.Stats.MarksAdapted++
			case types.MethodLevelAdapted:
				paper.Stats.LevelAdapted++
			default:
				paper.Stats.Generated++
			}
			if resolved.SourceRecordID != nil {
				paper.ConsumedRecordIDs = append(paper.ConsumedRecordIDs, *resolved.SourceRecordID)
			}
		}
		paper.Sections = append(paper.Sections, out)
	}

	log.Info("selection complete",
		"exact_reuse", paper.Stats.ExactReuse,
		"marks_adapted", paper.Stats.MarksAdapted,
		"level_adapted", paper.Stats.LevelAdapted,
		"generated", paper.Stats.Generated,
	)
	return paper, nil
}

func resolveSlot(ctx context.Context, deps SelectDeps, req types.GenerationRequest, slot types.QuestionSlot, records []*types.QuestionRecord, used map[uuid.UUID]bool) (*types.ResolvedQuestion, error) {
	base := types.ResolvedQuestion{
		ID:         uuid.New().String(),
		Number:     slot.Number,
		Module:     slot.Module,
		Topic:      slot.Topic,
		Subtopic:   slot.Subtopic,
		Marks:      slot.Marks,
		BloomLevel: slot.BloomLevel,
	}

	if slot.PreferReuse {
		if rec := findMatch(records, used, slot, matchExact); rec != nil {
			used[rec.ID] = true
			base.Text = rec.Text
			base.Method = types.MethodExactReuse
			id := rec.ID
			base.SourceRecordID = &id
			return &base, nil
		}

		if rec := findMatch(records, used, slot, matchLevel); rec != nil {
			text, err := rewrite(ctx, deps.AI, promptAdaptMarks, rec, slot)
			if err != nil {
				return nil, err
			}
			used[rec.ID] = true
			base.Text = text
			base.Method = types.MethodMarksAdapted
			id := rec.ID
			base.SourceRecordID = &id
			return &base, nil
		}

		if rec := findMatch(records, used, slot, matchTopic); rec != nil {
			text, err := rewrite(ctx, deps.AI, promptAdaptLevel, rec, slot)
			if err != nil {
				return nil, err
			}
			used[rec.ID] = true
			base.Text = text
			base.Method = types.MethodLevelAdapted
			id := rec.ID
			base.SourceRecordID = &id
			return &base, nil
		}
	}

	system, user := promptGenerate(slot, req.Syllabus.CourseName)
	raw, err := deps.AI.GenerateText(ctx, system, user)
	if err != nil {
		return nil, err
	}
	var qt questionText
	if err := jsonx.DecodeObject(raw, &qt); err != nil {
		return nil, fmt.Errorf("decode generated question: %w", err)
	}
	if strings.TrimSpace(qt.QuestionText) == "" {
		return nil, fmt.Errorf("empty generated question")
	}
	base.Text = qt.QuestionText
	base.Method = types.MethodGenerated
	return &base, nil
}

type matchFn func(rec *types.QuestionRecord, slot types.QuestionSlot) bool

// findMatch returns the first unconsumed match. Records arrive newest year
// first, id ascending, which makes ties deterministic.
func findMatch(records []*types.QuestionRecord, used map[uuid.UUID]bool, slot types.QuestionSlot, match matchFn) *types.QuestionRecord {
	for _, rec := range records {
		if used[rec.ID] {
			continue
		}
		if match(rec, slot) {
			return rec
		}
	}
	return nil
}

func matchTopic(rec *types.QuestionRecord, slot types.QuestionSlot) bool {
	return normKey(rec.Topic) == normKey(slot.Topic) &&
		normKey(rec.Subtopic) == normKey(slot.Subtopic)
}

func matchLevel(rec *types.QuestionRecord, slot types.QuestionSlot) bool {
	return matchTopic(rec, slot) &&
		strings.EqualFold(rec.BloomLevel, slot.BloomLevel)
}

func matchExact(rec *types.QuestionRecord, slot types.QuestionSlot) bool {
	return matchLevel(rec, slot) && rec.Marks == slot.Marks
}

type rewritePrompt func(rec *types.QuestionRecord, slot types.QuestionSlot) (string, string)

func rewrite(ctx context.Context, ai llm.Client, prompt rewritePrompt, rec *types.QuestionRecord, slot types.QuestionSlot) (string, error) {
	system, user := prompt(rec, slot)
	raw, err := ai.GenerateText(ctx, system, user)
	if err != nil {
		return "", err
	}
	var qt questionText
	if err := jsonx.DecodeObject(raw, &qt); err != nil {
		return "", fmt.Errorf("decode reworked question: %w", err)
	}
	if strings.TrimSpace(qt.QuestionText) == "" {
		return "", fmt.Errorf("empty reworked question")
	}
	return qt.QuestionText, nil
}
