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

type UserHandler struct {
	log     *logger.Logger
	users   services.UserService
	indexer indexer.Service
	stale   repos.StaleIndexRepo
}

func NewUserHandler(log *logger.Logger, users services.UserService, idx indexer.Service, stale repos.StaleIndexRepo) *UserHandler {
	return &UserHandler{log: log.With("handler", "User"), users: users, indexer: idx, stale: stale}
}

func (h *UserHandler) List(c *gin.Context) {
	page := intQuery(c, "page", defaultPage)
	pageSize := intQuery(c, "pageSize", defaultPageSize)
	search := c.Query("search")
	out, err := h.users.List(c.Request.Context(), nil, page, pageSize, search)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, user)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user, err := h.users.Create(c.Request.Context(), nil, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindUser, user.ID, "create")
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req services.UpdateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user, err := h.users.Update(c.Request.Context(), nil, id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindUser, user.ID, "update")
	response.RespondOK(c, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.users.Delete(c.Request.Context(), nil, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	syncIndex(c.Request.Context(), h.log, h.indexer, h.stale, types.KindUser, id, "delete")
	c.Status(http.StatusNoContent)
}
