package domain

import "github.com/google/uuid"

// Cognitive levels, lowest to highest. Distributions are keyed by these names.
const (
	BloomRemember   = "remember"
	BloomUnderstand = "understand"
	BloomApply      = "apply"
	BloomAnalyze    = "analyze"
	BloomEvaluate   = "evaluate"
	BloomCreate     = "create"
)

func BloomLevels() []string {
	return []string{BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate}
}

// SectionPattern describes one section of the paper template.
type SectionPattern struct {
	Name             string `json:"section_name" yaml:"section_name"`
	Description      string `json:"description" yaml:"description"`
	QuestionCount    int    `json:"question_count" yaml:"question_count"`
	MarksPerQuestion int    `json:"marks_per_question" yaml:"marks_per_question"`
	TotalMarks       int    `json:"total_marks" yaml:"total_marks"`
}

// WeightRange bounds a module's share of total marks, as fractions of 1.
type WeightRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// PaperPattern is the structural template a paper must conform to.
type PaperPattern struct {
	Name              string           `json:"name" yaml:"name"`
	ExamType          string           `json:"exam_type" yaml:"exam_type"`
	TotalMarks        int              `json:"total_marks" yaml:"total_marks"`
	TotalQuestions    int              `json:"total_questions" yaml:"total_questions"`
	DurationMinutes   int              `json:"duration_minutes" yaml:"duration_minutes"`
	AllowedMarks      []int            `json:"allowed_marks" yaml:"allowed_marks"`
	ModuleWeightRange WeightRange      `json:"module_weight_range" yaml:"module_weight_range"`
	Sections          []SectionPattern `json:"sections" yaml:"sections"`
}

type SyllabusTopic struct {
	Name      string   `json:"name" yaml:"name"`
	Subtopics []string `json:"subtopics" yaml:"subtopics"`
}

type SyllabusModule struct {
	Number    string          `json:"number" yaml:"number"`
	Name      string          `json:"name" yaml:"name"`
	Weightage float64         `json:"weightage" yaml:"weightage"`
	Topics    []SyllabusTopic `json:"topics" yaml:"topics"`
}

// Syllabus is the course content tree slots draw from.
type Syllabus struct {
	CourseCode string           `json:"course_code" yaml:"course_code"`
	CourseName string           `json:"course_name" yaml:"course_name"`
	Modules    []SyllabusModule `json:"modules" yaml:"modules"`
}

// TeacherPreferences steer blueprint planning without overriding the pattern.
type TeacherPreferences struct {
	FocusModules        []string `json:"focus_modules,omitempty"`
	FocusReason         string   `json:"focus_reason,omitempty"`
	PreferReuse         bool     `json:"prefer_reuse"`
	Difficulty          string   `json:"difficulty,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
}

// BankUsage summarizes the historical bank for blueprint planning. Year
// bounds are zero when the bank is empty.
type BankUsage struct {
	TotalRecords int64            `json:"total_records"`
	ByTopic      map[string]int64 `json:"by_topic,omitempty"`
	YearMin      int              `json:"year_min,omitempty"`
	YearMax      int              `json:"year_max,omitempty"`
}

// GenerationRequest is the full input captured at run creation.
type GenerationRequest struct {
	Syllabus          Syllabus           `json:"syllabus"`
	Pattern           PaperPattern       `json:"pattern"`
	Preferences       TeacherPreferences `json:"preferences"`
	BloomDistribution map[string]float64 `json:"bloom_distribution,omitempty"`
}

// QuestionSlot is one planned position in the blueprint. PreferReuse hints the
// selector toward the bank; the selector still falls through the tiers either way.
type QuestionSlot struct {
	Number      string `json:"question_number"`
	Module      string `json:"module"`
	Topic       string `json:"topic"`
	Subtopic    string `json:"subtopic"`
	Marks       int    `json:"marks"`
	BloomLevel  string `json:"bloom_level"`
	PreferReuse bool   `json:"prefer_reuse"`
	Rationale   string `json:"rationale,omitempty"`
}

type BlueprintSection struct {
	Name        string         `json:"section_name"`
	Description string         `json:"section_description"`
	Questions   []QuestionSlot `json:"questions"`
}

type BlueprintMeta struct {
	TotalMarks         int                `json:"total_marks"`
	TotalQuestions     int                `json:"total_questions"`
	BloomDistribution  map[string]float64 `json:"bloom_distribution"`
	ModuleDistribution map[string]float64 `json:"module_distribution"`
}

// Blueprint is the stage-one plan: every slot typed and budgeted before any
// question text exists.
type Blueprint struct {
	Meta          BlueprintMeta      `json:"blueprint_metadata"`
	Sections      []BlueprintSection `json:"sections"`
	StrategyNotes string             `json:"strategy_notes,omitempty"`
}

func (b *Blueprint) SlotCount() int {
	n := 0
	for _, s := range b.Sections {
		n += len(s.Questions)
	}
	return n
}

func (b *Blueprint) MarksTotal() int {
	total := 0
	for _, s := range b.Sections {
		for _, q := range s.Questions {
			total += q.Marks
		}
	}
	return total
}

// How a slot's question text was produced.
const (
	MethodExactReuse   = "exact_reuse"
	MethodMarksAdapted = "marks_adapted"
	MethodLevelAdapted = "level_adapted"
	MethodGenerated    = "generated"
)

// ResolvedQuestion is a slot with concrete text attached. SourceRecordID is
// set only when a bank record contributed the text.
type ResolvedQuestion struct {
	ID             string     `json:"id"`
	Number         string     `json:"question_number"`
	Module         string     `json:"module"`
	Topic          string     `json:"topic"`
	Subtopic       string     `json:"subtopic"`
	Marks          int        `json:"marks"`
	BloomLevel     string     `json:"bloom_level"`
	Text           string     `json:"question_text"`
	Method         string     `json:"resolution_method"`
	SourceRecordID *uuid.UUID `json:"source_record_id,omitempty"`
}

type PaperSection struct {
	Name        string             `json:"section_name"`
	Description string             `json:"section_description"`
	Questions   []ResolvedQuestion `json:"questions"`
}

// SelectionStats counts resolution methods across the assembled paper.
type SelectionStats struct {
	TotalQuestions int `json:"total_questions"`
	ExactReuse     int `json:"exact_reuse"`
	MarksAdapted   int `json:"marks_adapted"`
	LevelAdapted   int `json:"level_adapted"`
	Generated      int `json:"generated"`
}

// AssembledPaper is the stage-two output: the full paper plus provenance.
type AssembledPaper struct {
	PaperID           string         `json:"paper_id"`
	CourseCode        string         `json:"course_code"`
	CourseName        string         `json:"course_name"`
	ExamType          string         `json:"exam_type"`
	TotalMarks        int            `json:"total_marks"`
	DurationMinutes   int            `json:"duration_minutes"`
	Sections          []PaperSection `json:"sections"`
	Stats             SelectionStats `json:"selection_stats"`
	ConsumedRecordIDs []uuid.UUID    `json:"consumed_record_ids,omitempty"`
}

func (p *AssembledPaper) Questions() []ResolvedQuestion {
	var out []ResolvedQuestion
	for _, s := range p.Sections {
		out = append(out, s.Questions...)
	}
	return out
}

// Verdict outcomes.
const (
	VerdictAccepted = "ACCEPTED"
	VerdictRejected = "REJECTED"
)

type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// ScoreBreakdown exposes how the final rating was composed.
type ScoreBreakdown struct {
	Deterministic           float64            `json:"deterministic"`
	Qualitative             float64            `json:"qualitative"`
	QualitativeBreakdown    map[string]float64 `json:"qualitative_breakdown,omitempty"`
	BloomScore              float64            `json:"bloom_score"`
	ActualBloomDistribution map[string]float64 `json:"actual_bloom_distribution,omitempty"`
	Checks                  []CheckResult      `json:"checks"`
}

// Verdict is the stage-three output. Issues and Suggestions are populated
// only on rejection.
type Verdict struct {
	Rating      float64        `json:"rating"`
	Verdict     string         `json:"verdict"`
	Summary     string         `json:"summary"`
	Issues      []string       `json:"issues,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Scores      ScoreBreakdown `json:"scores"`
}
