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

type ProjectHandler struct {
	log      *logger.Logger
	projects services.ProjectService
	indexer  indexer.Service
	stale    repos.StaleIndexRepo
}

func NewProjectHandler(log *logger.Logger, projects services.ProjectService, idx indexer.Service, stale repos.StaleIndexRepo) *ProjectHandler {
	return &ProjectHandler{log: log.With("handler", "Project"), projects: projects, indexer: idx, stale: stale}
}

func (h *ProjectHandler) List(c *gin.Context) {
	page := intQuery(c, "page", defaultPage)
	pageSize := intQuery(c, "pageSize", defaultPageSize)
	search := c.Query("search")
	out, err := h.projects.List(c.Request.Context(), nil, page, pageSize, search)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	project, err := h.projects.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, project)
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	project, err := h.projects.Create(c.Request.Context(), nil, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindProject, project.ID, "create")
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req services.UpdateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	project, err := h.projects.Update(c.Request.Context(), nil, id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindProject, project.ID, "update")
	response.RespondOK(c, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.projects.Delete(c.Request.Context(), nil, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindProject, id, "delete")
	c.Status(http.StatusNoContent)
}
