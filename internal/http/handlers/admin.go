package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/http/response"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
	"github.com/yungbote/taskbridge-backend/internal/rag/indexer"
)

const defaultSweepLimit = 100

// AdminHandler exposes the index maintenance surface: full re-sync,
// collection introspection and the stale-entry sweep.
type AdminHandler struct {
	log     *logger.Logger
	indexer indexer.Service
	store   qdrant.Store
}

func NewAdminHandler(log *logger.Logger, idx indexer.Service, store qdrant.Store) *AdminHandler {
	return &AdminHandler{log: log.With("handler", "Admin"), indexer: idx, store: store}
}

func (h *AdminHandler) IndexAll(c *gin.Context) {
	stats, err := h.indexer.IndexAll(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, stats)
}

func (h *AdminHandler) IndexInfo(c *gin.Context) {
	info, err := h.store.GetCollectionInfo(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, info)
}

func (h *AdminHandler) SweepStale(c *gin.Context) {
	limit := intQuery(c, "limit", defaultSweepLimit)
	stats, err := h.indexer.SweepStale(c.Request.Context(), limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, stats)
}
