package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/repos"
	"github.com/bespoken/bespoken-backend/internal/scenarios"
)

type ScenarioHandler struct {
	log      *logger.Logger
	store    scenarios.Store
	turnRepo repos.TurnRepo
}

func NewScenarioHandler(log *logger.Logger, store scenarios.Store, turnRepo repos.TurnRepo) *ScenarioHandler {
	return &ScenarioHandler{
		log:      log.With("handler", "ScenarioHandler"),
		store:    store,
		turnRepo: turnRepo,
	}
}

// GET /api/scenarios
func (h *ScenarioHandler) ListScenarios(c *gin.Context) {
	RespondOK(c, h.store.ListSummaries())
}

// GET /api/scenarios/:id
func (h *ScenarioHandler) GetScenario(c *gin.Context) {
	sc, ok := h.store.GetScenario(c.Param("id"))
	if !ok {
		RespondError(c, http.StatusNotFound, errors.New("scenario not found"))
		return
	}
	RespondOK(c, sc)
}

// GET /api/scenarios/:id/turns/:index
// The scripted partner side of one exchange, used by the client to play
// the partner video before recording.
func (h *ScenarioHandler) GetTurnContext(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		RespondError(c, http.StatusBadRequest, errors.New("turn index must be a non-negative integer"))
		return
	}

	turnCtx, ok := h.store.GetTurnContext(c.Param("id"), index)
	if !ok {
		RespondError(c, http.StatusNotFound, errors.New("scenario or turn not found"))
		return
	}
	RespondOK(c, turnCtx)
}

// GET /api/scenarios/:id/history?user_id=...
// All persisted turns for a user in one scenario, oldest first.
func (h *ScenarioHandler) GetHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		RespondError(c, http.StatusBadRequest, errors.New("user_id query parameter is required"))
		return
	}

	turns, err := h.turnRepo.GetByUserAndScenario(c.Request.Context(), nil, userID, c.Param("id"))
	if err != nil {
		h.log.Error("Failed to load turn history", "error", err)
		RespondError(c, http.StatusInternalServerError, errors.New("could not load turn history"))
		return
	}
	RespondOK(c, turns)
}
