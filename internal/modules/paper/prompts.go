package paper

import (
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/paperforge/paperforge-backend/internal/domain"
)

func promptBlueprint(req types.GenerationRequest, usage *types.BankUsage) (system string, user string) {
	system = `You are an experienced exam paper setter. You design paper blueprints: every question slot typed by module, topic, subtopic, marks, and cognitive level, before any question text is written.
Return ONLY JSON, no prose, no markdown fences. The JSON must match this shape exactly:
{
  "blueprint_metadata": {
    "total_marks": <int>,
    "total_questions": <int>,
    "bloom_distribution": {"<level>": <fraction>},
    "module_distribution": {"<module number>": <fraction>}
  },
  "sections": [
    {
      "section_name": "<string>",
      "section_description": "<string>",
      "questions": [
        {
          "question_number": "<string>",
          "module": "<module number>",
          "topic": "<topic from the syllabus>",
          "subtopic": "<subtopic from the syllabus>",
          "marks": <int>,
          "bloom_level": "<remember|understand|apply|analyze|evaluate|create>",
          "prefer_reuse": <bool>,
          "rationale": "<one line>"
        }
      ]
    }
  ],
  "strategy_notes": "<string>"
}`

	syllabusJSON, _ := json.Marshal(req.Syllabus)
	patternJSON, _ := json.Marshal(req.Pattern)
	prefsJSON, _ := json.Marshal(req.Preferences)

	var b strings.Builder
	b.WriteString("Syllabus:\n")
	b.Write(syllabusJSON)
	b.WriteString("\n\nPaper pattern (sections, counts, and marks are hard constraints):\n")
	b.Write(patternJSON)
	b.WriteString("\n\nTeacher preferences:\n")
	b.Write(prefsJSON)
	if len(req.BloomDistribution) > 0 {
		distJSON, _ := json.Marshal(req.BloomDistribution)
		b.WriteString("\n\nTarget cognitive level distribution (fractions of total marks):\n")
		b.Write(distJSON)
	}
	if usage != nil && usage.TotalRecords > 0 {
		usageJSON, _ := json.Marshal(usage)
		fmt.Fprintf(&b, "\n\nPast question bank, papers %d to %d (prefer reuse where the bank is deep):\n", usage.YearMin, usage.YearMax)
		b.Write(usageJSON)
	}
	b.WriteString("\n\nTask: produce the blueprint. Hard constraints:\n")
	fmt.Fprintf(&b, "- Exactly %d questions totalling exactly %d marks.\n", req.Pattern.TotalQuestions, req.Pattern.TotalMarks)
	b.WriteString("- Mirror the pattern sections exactly: same names, question counts, and marks per question.\n")
	b.WriteString("- Every topic and subtopic must come from the syllabus.\n")
	b.WriteString("- Keep each module's share of marks inside the pattern's module weight range.\n")
	b.WriteString("- Spread topics; never plan the same topic and subtopic pair twice in the paper.\n")
	return system, b.String()
}

// blueprintRetrySuffix tightens the instructions after a parse failure.
// Appended once per retry.
const blueprintRetrySuffix = "\n\nIMPORTANT: your previous answer was not parseable JSON. Respond with a single complete JSON object only. No markdown fences, no commentary, no trailing commas. Close every bracket."

func promptAdaptMarks(rec *types.QuestionRecord, slot types.QuestionSlot) (system string, user string) {
	system = `You rework past exam questions for reuse. Keep the subject and intent, change only what the new marks weight requires.
Return ONLY JSON: {"question_text": "<string>"}`
	var b strings.Builder
	b.WriteString("Original question (")
	fmt.Fprintf(&b, "%d marks, %d):\n%s\n\n", rec.Marks, rec.Year, rec.Text)
	fmt.Fprintf(&b, "Rework it as a %d mark question at the %q cognitive level on topic %q / subtopic %q.\n", slot.Marks, slot.BloomLevel, slot.Topic, slot.Subtopic)
	if slot.Marks > rec.Marks {
		b.WriteString("The new version carries more marks: broaden scope or add parts accordingly.\n")
	} else {
		b.WriteString("The new version carries fewer marks: narrow scope accordingly.\n")
	}
	b.WriteString("Do not copy the original verbatim.")
	return system, b.String()
}

func promptAdaptLevel(rec *types.QuestionRecord, slot types.QuestionSlot) (system string, user string) {
	system = `You rework past exam questions for reuse. Keep the subject matter, shift the cognitive demand to the requested level.
Return ONLY JSON: {"question_text": "<string>"}`
	var b strings.Builder
	fmt.Fprintf(&b, "Original question (level %q, %d marks, %d):\n%s\n\n", rec.BloomLevel, rec.Marks, rec.Year, rec.Text)
	fmt.Fprintf(&b, "Rework it as a %d mark question at the %q cognitive level on topic %q / subtopic %q.\n", slot.Marks, slot.BloomLevel, slot.Topic, slot.Subtopic)
	b.WriteString("Use verbs and framing appropriate to the target level. Do not copy the original verbatim.")
	return system, b.String()
}

func promptGenerate(slot types.QuestionSlot, courseName string) (system string, user string) {
	system = `You write university exam questions. Questions must be self-contained, unambiguous, and answerable within the marks weight.
Return ONLY JSON: {"question_text": "<string>"}`
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", courseName)
	fmt.Fprintf(&b, "Write one %d mark exam question.\n", slot.Marks)
	fmt.Fprintf(&b, "Topic: %s\nSubtopic: %s\nCognitive level: %s\n", slot.Topic, slot.Subtopic, slot.BloomLevel)
	b.WriteString("State the question only; no answer, no marks annotation.")
	return system, b.String()
}

func promptJudge(paperJSON string, req types.GenerationRequest, checks []types.CheckResult) (system string, user string) {
	system = `You are an external examiner reviewing an assembled exam paper. Score each dimension from 0 to 10.
Return ONLY JSON:
{
  "question_clarity": <number>,
  "syllabus_relevance": <number>,
  "difficulty_flow": <number>,
  "teacher_alignment": <number>,
  "overall_coherence": <number>,
  "issues": ["<string>"],
  "suggestions": ["<string>"]
}`
	prefsJSON, _ := json.Marshal(req.Preferences)
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s (%s)\n\n", req.Syllabus.CourseName, req.Syllabus.CourseCode)
	b.WriteString("Teacher preferences:\n")
	b.Write(prefsJSON)
	b.WriteString("\n\nAssembled paper:\n")
	b.WriteString(paperJSON)
	if len(checks) > 0 {
		b.WriteString("\n\nStructural check results:\n")
		for _, c := range checks {
			status := "pass"
			if !c.Pass {
				status = "fail"
			}
			fmt.Fprintf(&b, "- %s: %s", c.Name, status)
			if c.Detail != "" {
				fmt.Fprintf(&b, " (%s)", c.Detail)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nScore the paper. Be specific in issues and suggestions; leave them empty if nothing is wrong.")
	return system, b.String()
}
