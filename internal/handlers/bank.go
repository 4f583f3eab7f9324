package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paperforge/paperforge-backend/internal/data/repos"
	types "github.com/paperforge/paperforge-backend/internal/domain"
	"github.com/paperforge/paperforge-backend/internal/platform/dbctx"
)

type BankHandler struct {
	records repos.QuestionRecordRepo
}

func NewBankHandler(records repos.QuestionRecordRepo) *BankHandler {
	return &BankHandler{records: records}
}

type importRecordsRequest struct {
	Records []types.QuestionRecord `json:"records"`
}

// POST /api/bank/records
func (h *BankHandler) ImportRecords(c *gin.Context) {
	var body importRecordsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(body.Records) == 0 {
		RespondError(c, http.StatusBadRequest, "empty_import", errors.New("no records to import"))
		return
	}

	toCreate := make([]*types.QuestionRecord, 0, len(body.Records))
	for i := range body.Records {
		rec := body.Records[i]
		if strings.TrimSpace(rec.Text) == "" || strings.TrimSpace(rec.Topic) == "" {
			RespondError(c, http.StatusBadRequest, "invalid_record", errors.New("every record needs text and a topic"))
			return
		}
		rec.BloomLevel = strings.ToLower(strings.TrimSpace(rec.BloomLevel))
		toCreate = append(toCreate, &rec)
	}

	created, err := h.records.Create(dbctx.Context{Ctx: c.Request.Context()}, toCreate)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "import_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": len(created)})
}

// GET /api/bank/stats
func (h *BankHandler) Stats(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	total, err := h.records.Count(dbc)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	byTopic, err := h.records.CountByTopic(dbc)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	minYear, maxYear, err := h.records.YearRange(dbc)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"total_records": total,
		"by_topic":      byTopic,
		"year_min":      minYear,
		"year_max":      maxYear,
	})
}
