package paper

import (
	"context"
	"strings"

	types "github.com/paperforge/paperforge-backend/internal/domain"
)

type fakeAI struct {
	fn    func(system, user string) (string, error)
	calls int
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.fn(system, user)
}

func testRequest() types.GenerationRequest {
	return types.GenerationRequest{
		Syllabus: types.Syllabus{
			CourseCode: "CS301",
			CourseName: "Operating Systems",
			Modules: []types.SyllabusModule{
				{
					Number:    "1",
					Name:      "Processes",
					Weightage: 0.5,
					Topics: []types.SyllabusTopic{
						{Name: "Process Management", Subtopics: []string{"Scheduling", "Synchronization"}},
					},
				},
				{
					Number:    "2",
					Name:      "Memory",
					Weightage: 0.5,
					Topics: []types.SyllabusTopic{
						{Name: "Memory Management", Subtopics: []string{"Paging", "Segmentation"}},
					},
				},
			},
		},
		Pattern: types.PaperPattern{
			Name:              "test_30",
			ExamType:          "Unit Test",
			TotalMarks:        30,
			TotalQuestions:    4,
			DurationMinutes:   60,
			AllowedMarks:      []int{5, 10},
			ModuleWeightRange: types.WeightRange{Min: 0, Max: 1},
			Sections: []types.SectionPattern{
				{Name: "Section A", Description: "Short answers", QuestionCount: 2, MarksPerQuestion: 5, TotalMarks: 10},
				{Name: "Section B", Description: "Long answers", QuestionCount: 2, MarksPerQuestion: 10, TotalMarks: 20},
			},
		},
		Preferences: types.TeacherPreferences{PreferReuse: true},
		BloomDistribution: map[string]float64{
			types.BloomRemember:   0.17,
			types.BloomUnderstand: 0.17,
			types.BloomApply:      0.33,
			types.BloomAnalyze:    0.33,
		},
	}
}

// testBlueprint mirrors testRequest's pattern exactly.
func testBlueprint() *types.Blueprint {
	return &types.Blueprint{
		Meta: types.BlueprintMeta{TotalMarks: 30, TotalQuestions: 4},
		Sections: []types.BlueprintSection{
			{
				Name: "Section A",
				Questions: []types.QuestionSlot{
					{Number: "Q1", Module: "1", Topic: "Process Management", Subtopic: "Scheduling", Marks: 5, BloomLevel: types.BloomRemember, PreferReuse: true},
					{Number: "Q2", Module: "2", Topic: "Memory Management", Subtopic: "Paging", Marks: 5, BloomLevel: types.BloomUnderstand, PreferReuse: true},
				},
			},
			{
				Name: "Section B",
				Questions: []types.QuestionSlot{
					{Number: "Q3", Module: "1", Topic: "Process Management", Subtopic: "Synchronization", Marks: 10, BloomLevel: types.BloomApply, PreferReuse: true},
					{Number: "Q4", Module: "2", Topic: "Memory Management", Subtopic: "Segmentation", Marks: 10, BloomLevel: types.BloomAnalyze, PreferReuse: true},
				},
			},
		},
	}
}

// answerByPrompt routes fake model calls on the system prompt's opening words.
func answerByPrompt(system string, onRewrite, onGenerate, onJudge string) string {
	switch {
	case strings.Contains(system, "rework past exam questions"):
		return onRewrite
	case strings.Contains(system, "write university exam questions"):
		return onGenerate
	case strings.Contains(system, "external examiner"):
		return onJudge
	default:
		return ""
	}
}
