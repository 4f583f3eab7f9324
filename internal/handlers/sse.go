package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paperforge/paperforge-backend/internal/platform/logger"
	"github.com/paperforge/paperforge-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.SSEHub
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /api/events/:run_id
//
// Streams run lifecycle events for one run. Events published before the
// subscription are not replayed; poll the run and its artifacts for state.
func (h *SSEHandler) StreamRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", errors.New("run id must be a uuid"))
		return
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, runID.String())
	h.log.Debug("run event stream open", "run_id", runID, "clientID", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("run event stream closed", "run_id", runID, "clientID", client.ID)
}
