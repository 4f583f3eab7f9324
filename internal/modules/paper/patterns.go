package paper

import (
	"embed"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/paperforge/paperforge-backend/internal/domain"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// LoadPresets parses the embedded pattern presets, keyed by pattern name.
func LoadPresets() (map[string]types.PaperPattern, error) {
	out := map[string]types.PaperPattern{}
	entries, err := fs.ReadDir(presetFS, "presets")
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	for _, e := range entries {
		raw, err := presetFS.ReadFile("presets/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read preset %s: %w", e.Name(), err)
		}
		var p types.PaperPattern
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse preset %s: %w", e.Name(), err)
		}
		if err := ValidatePattern(p); err != nil {
			return nil, fmt.Errorf("preset %s: %w", e.Name(), err)
		}
		out[p.Name] = p
	}
	return out, nil
}

func PresetNames() ([]string, error) {
	presets, err := LoadPresets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ValidatePattern rejects internally inconsistent templates before a run is
// ever created.
func ValidatePattern(p types.PaperPattern) error {
	if p.TotalMarks <= 0 {
		return fmt.Errorf("total_marks must be positive")
	}
	if p.TotalQuestions <= 0 {
		return fmt.Errorf("total_questions must be positive")
	}
	if len(p.Sections) == 0 {
		return fmt.Errorf("pattern has no sections")
	}
	if len(p.AllowedMarks) == 0 {
		return fmt.Errorf("allowed_marks is empty")
	}
	if p.ModuleWeightRange.Min < 0 || p.ModuleWeightRange.Max > 1 || p.ModuleWeightRange.Min > p.ModuleWeightRange.Max {
		return fmt.Errorf("module_weight_range [%.2f, %.2f] is invalid", p.ModuleWeightRange.Min, p.ModuleWeightRange.Max)
	}

	allowed := map[int]bool{}
	for _, m := range p.AllowedMarks {
		allowed[m] = true
	}

	sumMarks, sumQuestions := 0, 0
	for _, s := range p.Sections {
		if s.QuestionCount <= 0 || s.MarksPerQuestion <= 0 {
			return fmt.Errorf("section %q has non-positive counts", s.Name)
		}
		if !allowed[s.MarksPerQuestion] {
			return fmt.Errorf("section %q uses %d marks, not in allowed_marks", s.Name, s.MarksPerQuestion)
		}
		if s.QuestionCount*s.MarksPerQuestion != s.TotalMarks {
			return fmt.Errorf("section %q: %d x %d != %d", s.Name, s.QuestionCount, s.MarksPerQuestion, s.TotalMarks)
		}
		sumMarks += s.TotalMarks
		sumQuestions += s.QuestionCount
	}
	if sumMarks != p.TotalMarks {
		return fmt.Errorf("section marks sum to %d, pattern declares %d", sumMarks, p.TotalMarks)
	}
	if sumQuestions != p.TotalQuestions {
		return fmt.Errorf("sections hold %d questions, pattern declares %d", sumQuestions, p.TotalQuestions)
	}
	return nil
}

// ValidateRequest is the pre-flight gate: an inconsistent request is rejected
// before any run row exists.
func ValidateRequest(req types.GenerationRequest) error {
	if err := ValidatePattern(req.Pattern); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if len(req.Syllabus.Modules) == 0 {
		return fmt.Errorf("syllabus has no modules")
	}
	for _, m := range req.Syllabus.Modules {
		if len(m.Topics) == 0 {
			return fmt.Errorf("syllabus module %q has no topics", m.Name)
		}
	}

	if len(req.BloomDistribution) > 0 {
		known := map[string]bool{}
		for _, lvl := range types.BloomLevels() {
			known[lvl] = true
		}
		sum := 0.0
		for lvl, frac := range req.BloomDistribution {
			if !known[strings.ToLower(strings.TrimSpace(lvl))] {
				return fmt.Errorf("unknown bloom level %q in distribution", lvl)
			}
			if frac < 0 {
				return fmt.Errorf("bloom level %q has negative weight", lvl)
			}
			sum += frac
		}
		if math.Abs(sum-1.0) > 0.01 {
			return fmt.Errorf("bloom distribution sums to %.2f, expected 1.0", sum)
		}
	}

	if len(req.Preferences.FocusModules) > 0 {
		byNumber := map[string]bool{}
		for _, m := range req.Syllabus.Modules {
			byNumber[m.Number] = true
		}
		for _, focus := range req.Preferences.FocusModules {
			if !byNumber[focus] {
				return fmt.Errorf("focus module %q is not in the syllabus", focus)
			}
		}
	}
	return nil
}
