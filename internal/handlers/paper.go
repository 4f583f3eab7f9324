package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/modules/paper"
	"github.com/paperforge/paperforge-backend/internal/services"
)

type PaperHandler struct {
	generation services.PaperGenerationService
	store      services.SessionStore
}

func NewPaperHandler(generation services.PaperGenerationService, store services.SessionStore) *PaperHandler {
	return &PaperHandler{generation: generation, store: store}
}

type createPaperRequest struct {
	Syllabus          types.Syllabus           `json:"syllabus"`
	Pattern           *types.PaperPattern      `json:"pattern,omitempty"`
	PatternPreset     string                   `json:"pattern_preset,omitempty"`
	Preferences       types.TeacherPreferences `json:"preferences"`
	BloomDistribution map[string]float64       `json:"bloom_distribution,omitempty"`
}

// POST /api/papers
func (h *PaperHandler) CreatePaper(c *gin.Context) {
	var body createPaperRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	req := types.GenerationRequest{
		Syllabus:          body.Syllabus,
		Preferences:       body.Preferences,
		BloomDistribution: body.BloomDistribution,
	}
	switch {
	case body.Pattern != nil:
		req.Pattern = *body.Pattern
	case body.PatternPreset != "":
		presets, err := paper.LoadPresets()
		if err != nil {
			RespondError(c, http.StatusInternalServerError, "presets_unavailable", err)
			return
		}
		preset, ok := presets[body.PatternPreset]
		if !ok {
			RespondError(c, http.StatusBadRequest, "unknown_preset", fmt.Errorf("unknown pattern preset %q", body.PatternPreset))
			return
		}
		req.Pattern = preset
	default:
		RespondError(c, http.StatusBadRequest, "missing_pattern", errors.New("provide pattern or pattern_preset"))
		return
	}

	run, err := h.generation.StartRun(c.Request.Context(), req)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// GET /api/papers/runs/:id
func (h *PaperHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.generation.GetRun(c.Request.Context(), runID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", fmt.Errorf("run %s not found", runID))
		return
	}
	RespondOK(c, gin.H{"run": run})
}

// GET /api/papers/runs/:id/artifacts/:stage
func (h *PaperHandler) GetArtifact(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	stage := c.Param("stage")
	valid := false
	for _, s := range types.StageOrder() {
		if s == stage {
			valid = true
			break
		}
	}
	if !valid {
		RespondError(c, http.StatusBadRequest, "invalid_stage", fmt.Errorf("unknown stage %q", stage))
		return
	}

	raw, err := h.store.GetArtifactRaw(c.Request.Context(), runID, stage)
	if errors.Is(err, services.ErrArtifactNotFound) {
		RespondError(c, http.StatusNotFound, "artifact_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "artifact_lookup_failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// GET /api/papers/patterns
func (h *PaperHandler) ListPatterns(c *gin.Context) {
	presets, err := paper.LoadPresets()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "presets_unavailable", err)
		return
	}
	RespondOK(c, gin.H{"patterns": presets})
}
