package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/jsonx"
	"github.com/paperforge/paperforge-backend/internal/platform/llm"
	"github.com/paperforge/paperforge-backend/internal/platform/logger"
)

const blueprintMaxAttempts = 3

// Applied when the request carries no explicit cognitive level targets.
func defaultBloomDistribution() map[string]float64 {
	return map[string]float64{
		types.BloomRemember:   0.15,
		types.BloomUnderstand: 0.25,
		types.BloomApply:      0.25,
		types.BloomAnalyze:    0.20,
		types.BloomEvaluate:   0.10,
		types.BloomCreate:     0.05,
	}
}

type BlueprintDeps struct {
	Log *logger.Logger
	AI  llm.Client
}

type BlueprintResult struct {
	Blueprint *types.Blueprint `json:"blueprint"`
	Warnings  []string         `json:"warnings,omitempty"`
	Fallback  bool             `json:"fallback"`
	Attempts  int              `json:"attempts"`
}

// BuildBlueprint plans the paper. It asks the model, repairs and retries on
// malformed output, and after the last attempt constructs a deterministic
// fallback plan, so the stage itself cannot fail short of a dead context.
// usage is advisory and may be nil.
func BuildBlueprint(ctx context.Context, deps BlueprintDeps, req types.GenerationRequest, usage *types.BankUsage) (*BlueprintResult, error) {
	log := deps.Log.With("step", "BuildBlueprint")
	system, user := promptBlueprint(req, usage)

	for attempt := 1; attempt <= blueprintMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := deps.AI.GenerateText(ctx, system, user)
		if err != nil {
			log.Warn("blueprint generation failed", "attempt", attempt, "error", err)
			user += blueprintRetrySuffix
			continue
		}

		var bp types.Blueprint
		if err := jsonx.DecodeObject(raw, &bp); err != nil {
			log.Warn("blueprint output not parseable", "attempt", attempt, "error", err)
			user += blueprintRetrySuffix
			continue
		}
		normalizeBlueprint(&bp)

		if err := checkBlueprintShape(&bp, req.Pattern); err != nil {
			log.Warn("blueprint shape rejected", "attempt", attempt, "error", err)
			user += blueprintRetrySuffix
			continue
		}

		warnings := blueprintWarnings(&bp, req)
		log.Info("blueprint accepted", "attempt", attempt, "warnings", len(warnings))
		return &BlueprintResult{Blueprint: &bp, Warnings: warnings, Attempts: attempt}, nil
	}

	log.Warn("blueprint attempts exhausted, using deterministic fallback")
	bp := fallbackBlueprint(req)
	return &BlueprintResult{
		Blueprint: bp,
		Warnings:  []string{"model blueprint unavailable, deterministic fallback used"},
		Fallback:  true,
		Attempts:  blueprintMaxAttempts,
	}, nil
}

func normalizeBlueprint(bp *types.Blueprint) {
	for si := range bp.Sections {
		sec := &bp.Sections[si]
		sec.Name = strings.TrimSpace(sec.Name)
		for qi := range sec.Questions {
			q := &sec.Questions[qi]
			q.Topic = strings.TrimSpace(q.Topic)
			q.Subtopic = strings.TrimSpace(q.Subtopic)
			q.Module = strings.TrimSpace(q.Module)
			q.BloomLevel = strings.ToLower(strings.TrimSpace(q.BloomLevel))
			if q.Number == "" {
				q.Number = fmt.Sprintf("Q%d", qi+1)
			}
		}
	}
	if bp.Meta.TotalMarks == 0 {
		bp.Meta.TotalMarks = bp.MarksTotal()
	}
	if bp.Meta.TotalQuestions == 0 {
		bp.Meta.TotalQuestions = bp.SlotCount()
	}
}

// checkBlueprintShape enforces the constraints a plan cannot recover from
// downstream. Violations trigger a retry, not a warning.
func checkBlueprintShape(bp *types.Blueprint, pattern types.PaperPattern) error {
	if len(bp.Sections) == 0 {
		return fmt.Errorf("no sections")
	}
	if got := bp.SlotCount(); got != pattern.TotalQuestions {
		return fmt.Errorf("%d slots, pattern requires %d", got, pattern.TotalQuestions)
	}
	if got := bp.MarksTotal(); got != pattern.TotalMarks {
		return fmt.Errorf("%d marks, pattern requires %d", got, pattern.TotalMarks)
	}
	for _, sec := range bp.Sections {
		for _, q := range sec.Questions {
			if q.Topic == "" {
				return fmt.Errorf("section %q has a slot without a topic", sec.Name)
			}
			if q.Marks <= 0 {
				return fmt.Errorf("section %q has a slot with non-positive marks", sec.Name)
			}
		}
	}
	return nil
}

// blueprintWarnings flags plan quality problems that selection can still
// work with.
func blueprintWarnings(bp *types.Blueprint, req types.GenerationRequest) []string {
	var warnings []string

	known := map[string]bool{}
	for _, lvl := range types.BloomLevels() {
		known[lvl] = true
	}
	topics := map[string]bool{}
	for _, m := range req.Syllabus.Modules {
		for _, t := range m.Topics {
			topics[normKey(t.Name)] = true
		}
	}

	allowed := map[int]bool{}
	for _, m := range req.Pattern.AllowedMarks {
		allowed[m] = true
	}

	seen := map[string]bool{}
	for _, sec := range bp.Sections {
		for _, q := range sec.Questions {
			if !known[q.BloomLevel] {
				warnings = append(warnings, fmt.Sprintf("%s: unknown cognitive level %q", q.Number, q.BloomLevel))
			}
			if !topics[normKey(q.Topic)] {
				warnings = append(warnings, fmt.Sprintf("%s: topic %q is not in the syllabus", q.Number, q.Topic))
			}
			if !allowed[q.Marks] {
				warnings = append(warnings, fmt.Sprintf("%s: %d marks is not an allowed weight", q.Number, q.Marks))
			}
			pair := normKey(q.Topic) + "|" + normKey(q.Subtopic)
			if seen[pair] {
				warnings = append(warnings, fmt.Sprintf("%s repeats topic %q / subtopic %q", q.Number, q.Topic, q.Subtopic))
			}
			seen[pair] = true
		}
	}

	if len(bp.Sections) != len(req.Pattern.Sections) {
		warnings = append(warnings, fmt.Sprintf("%d sections, pattern declares %d", len(bp.Sections), len(req.Pattern.Sections)))
	}
	return warnings
}

type topicRef struct {
	module   string
	topic    string
	subtopic string
}

// fallbackBlueprint builds a valid plan without the model: question counts
// are spread over modules by weightage (largest remainder), topics rotate
// within each module, and cognitive levels follow the target distribution.
func fallbackBlueprint(req types.GenerationRequest) *types.Blueprint {
	pattern := req.Pattern
	total := pattern.TotalQuestions

	moduleOrder, perModule := moduleQuota(req.Syllabus, total)

	// Flatten each module's topics, rotating subtopics.
	topicQueues := map[string][]topicRef{}
	for _, m := range req.Syllabus.Modules {
		var refs []topicRef
		for _, t := range m.Topics {
			if len(t.Subtopics) == 0 {
				refs = append(refs, topicRef{module: m.Number, topic: t.Name})
				continue
			}
			for _, st := range t.Subtopics {
				refs = append(refs, topicRef{module: m.Number, topic: t.Name, subtopic: st})
			}
		}
		topicQueues[m.Number] = refs
	}

	var refs []topicRef
	cursor := map[string]int{}
	for _, mod := range moduleOrder {
		queue := topicQueues[mod]
		if len(queue) == 0 {
			continue
		}
		for i := 0; i < perModule[mod]; i++ {
			refs = append(refs, queue[cursor[mod]%len(queue)])
			cursor[mod]++
		}
	}
	// Weightage rounding can leave slots short; pad by cycling.
	if n := len(refs); n > 0 {
		for len(refs) < total {
			refs = append(refs, refs[len(refs)%n])
		}
	}

	levels := levelSequence(req.BloomDistribution, total)

	bp := &types.Blueprint{
		Meta: types.BlueprintMeta{
			TotalMarks:     pattern.TotalMarks,
			TotalQuestions: total,
		},
		StrategyNotes: "deterministic fallback plan",
	}

	slot := 0
	for _, sp := range pattern.Sections {
		sec := types.BlueprintSection{
			Name:        sp.Name,
			Description: sp.Description,
		}
		for i := 0; i < sp.QuestionCount; i++ {
			ref := topicRef{topic: "General"}
			if slot < len(refs) {
				ref = refs[slot]
			}
			// The fallback plan carries no reuse hint; every slot synthesizes.
			sec.Questions = append(sec.Questions, types.QuestionSlot{
				Number:     fmt.Sprintf("Q%d", slot+1),
				Module:     ref.module,
				Topic:      ref.topic,
				Subtopic:   ref.subtopic,
				Marks:      sp.MarksPerQuestion,
				BloomLevel: levels[slot],
			})
			slot++
		}
		bp.Sections = append(bp.Sections, sec)
	}

	bp.Meta.BloomDistribution = distributionOf(levels)
	bp.Meta.ModuleDistribution = moduleMarksShare(bp)
	return bp
}

// moduleQuota splits the question count across modules by weightage using
// largest remainder. Zero weightages fall back to a uniform split.
func moduleQuota(syllabus types.Syllabus, total int) ([]string, map[string]int) {
	type share struct {
		module string
		weight float64
	}
	var shares []share
	sum := 0.0
	for _, m := range syllabus.Modules {
		shares = append(shares, share{module: m.Number, weight: m.Weightage})
		sum += m.Weightage
	}
	if sum <= 0 {
		for i := range shares {
			shares[i].weight = 1
		}
		sum = float64(len(shares))
	}

	order := make([]string, 0, len(shares))
	quota := map[string]int{}
	type rem struct {
		module string
		frac   float64
	}
	var rems []rem
	assigned := 0
	for _, s := range shares {
		exact := float64(total) * s.weight / sum
		n := int(exact)
		quota[s.module] = n
		assigned += n
		order = append(order, s.module)
		rems = append(rems, rem{module: s.module, frac: exact - float64(n)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < total && len(rems) > 0; i++ {
		quota[rems[i%len(rems)].module]++
		assigned++
	}
	return order, quota
}

// levelSequence expands a fractional distribution into a per-slot level list.
func levelSequence(dist map[string]float64, total int) []string {
	if len(dist) == 0 {
		dist = defaultBloomDistribution()
	}
	counts := map[string]int{}
	type rem struct {
		level string
		frac  float64
	}
	var rems []rem
	assigned := 0
	for _, lvl := range types.BloomLevels() {
		frac, ok := dist[lvl]
		if !ok {
			continue
		}
		exact := float64(total) * frac
		n := int(exact)
		counts[lvl] = n
		assigned += n
		rems = append(rems, rem{level: lvl, frac: exact - float64(n)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < total && len(rems) > 0; i++ {
		counts[rems[i%len(rems)].level]++
		assigned++
	}

	var out []string
	for _, lvl := range types.BloomLevels() {
		for i := 0; i < counts[lvl]; i++ {
			out = append(out, lvl)
		}
	}
	for len(out) < total {
		out = append(out, types.BloomUnderstand)
	}
	return out[:total]
}

func distributionOf(levels []string) map[string]float64 {
	if len(levels) == 0 {
		return nil
	}
	out := map[string]float64{}
	for _, lvl := range levels {
		out[lvl] += 1.0 / float64(len(levels))
	}
	return out
}

func moduleMarksShare(bp *types.Blueprint) map[string]float64 {
	total := bp.MarksTotal()
	if total == 0 {
		return nil
	}
	out := map[string]float64{}
	for _, sec := range bp.Sections {
		for _, q := range sec.Questions {
			out[q.Module] += float64(q.Marks) / float64(total)
		}
	}
	return out
}

func normKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
