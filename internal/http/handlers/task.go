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

type TaskHandler struct {
	log     *logger.Logger
	tasks   services.TaskService
	indexer indexer.Service
	stale   repos.StaleIndexRepo
}

func NewTaskHandler(log *logger.Logger, tasks services.TaskService, idx indexer.Service, stale repos.StaleIndexRepo) *TaskHandler {
	return &TaskHandler{log: log.With("handler", "Task"), tasks: tasks, indexer: idx, stale: stale}
}

func (h *TaskHandler) List(c *gin.Context) {
	page := intQuery(c, "page", defaultPage)
	pageSize := intQuery(c, "pageSize", defaultPageSize)
	search := c.Query("search")
	out, err := h.tasks.List(c.Request.Context(), nil, page, pageSize, search)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, task)
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), nil, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTask, task.ID, "create")
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req services.UpdateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := h.tasks.Update(c.Request.Context(), nil, id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTask, task.ID, "update")
	response.RespondOK(c, task)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), nil, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindTask, id, "delete")
	c.Status(http.StatusNoContent)
}
