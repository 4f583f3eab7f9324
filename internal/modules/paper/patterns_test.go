package paper

import (
	"testing"

	types "github.com/paperforge/paperforge-backend/internal/domain"
)

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets()
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if len(presets) == 0 {
		t.Fatal("no presets loaded")
	}
	endsem, ok := presets["endsem_80"]
	if !ok {
		t.Fatal("endsem_80 preset missing")
	}
	if endsem.TotalMarks != 80 || endsem.TotalQuestions != 10 {
		t.Fatalf("endsem_80 totals wrong: %+v", endsem)
	}
	if err := ValidatePattern(endsem); err != nil {
		t.Fatalf("endsem_80 invalid: %v", err)
	}
}

func TestValidatePatternRejectsInconsistentSections(t *testing.T) {
	p := testRequest().Pattern

	p.Sections[0].TotalMarks = 15 // 2 x 5 != 15
	if err := ValidatePattern(p); err == nil {
		t.Fatal("expected error for inconsistent section totals")
	}

	p = testRequest().Pattern
	p.TotalMarks = 50
	if err := ValidatePattern(p); err == nil {
		t.Fatal("expected error for section sum != pattern total")
	}

	p = testRequest().Pattern
	p.Sections[1].MarksPerQuestion = 7
	p.Sections[1].TotalMarks = 14
	if err := ValidatePattern(p); err == nil {
		t.Fatal("expected error for marks outside allowed_marks")
	}
}

func TestValidateRequest(t *testing.T) {
	if err := ValidateRequest(testRequest()); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	req := testRequest()
	req.BloomDistribution = map[string]float64{types.BloomApply: 0.5}
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected error for distribution not summing to 1")
	}

	req = testRequest()
	req.BloomDistribution = map[string]float64{"memorize": 1.0}
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected error for unknown level")
	}

	req = testRequest()
	req.Preferences.FocusModules = []string{"9"}
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected error for focus module not in syllabus")
	}

	req = testRequest()
	req.Syllabus.Modules = nil
	if err := ValidateRequest(req); err == nil {
		t.Fatal("expected error for empty syllabus")
	}
}
