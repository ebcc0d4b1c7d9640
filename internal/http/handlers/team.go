package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/http/response"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/rag/indexer"
	"github.com/yungbote/taskbridge-backend/internal/services"
)

type TeamHandler struct {
	log     *logger.Logger
	teams   services.TeamService
	indexer indexer.Service
	stale   repos.StaleIndexRepo
}

func NewTeamHandler(log *logger.Logger, teams services.TeamService, idx indexer.Service, stale repos.StaleIndexRepo) *TeamHandler {
	return &TeamHandler{log: log.With("handler", "Team"), teams: teams, indexer: idx, stale: stale}
}

func (h *TeamHandler) List(c *gin.Context) {
	page := intQuery(c, "page", defaultPage)
	pageSize := intQuery(c, "pageSize", defaultPageSize)
	search := c.Query("search")
	out, err := h.teams.List(c.Request.Context(), nil, page, pageSize, search)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *TeamHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	team, err := h.teams.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, team)
}

func (h *TeamHandler) Create(c *gin.Context) {
	var req services.CreateTeamInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	team, err := h.teams.Create(c.Request.Context(), nil, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTeam, team.ID, "create")
	c.JSON(http.StatusCreated, team)
}

func (h *TeamHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req services.UpdateTeamInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	team, err := h.teams.Update(c.Request.Context(), nil, id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTeam, team.ID, "update")
	response.RespondOK(c, team)
}

func (h *TeamHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.teams.Delete(c.Request.Context(), nil, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTeam, id, "delete")
	c.Status(http.StatusNoContent)
}
