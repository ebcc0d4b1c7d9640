package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/rag/indexer"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
)

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(c.Param("id")))
}

// syncIndex applies the vector-store write that follows a successful
// relational write. Failures never fail the request; they are recorded
// so the stale sweeper can repair the collection later.
func syncIndex(ctx context.Context, log *logger.Logger, idx indexer.Service, stale repos.StaleIndexRepo, kind types.EntityKind, id uuid.UUID, operation string) {
	var err error
	switch operation {
	case "create":
		err = idx.Index(ctx, kind, id)
	case "delete":
		err = idx.Delete(ctx, kind, id.String())
	default:
		err = idx.Reindex(ctx, kind, id)
	}
	if err == nil {
		return
	}
	log.Warn("post-write index sync failed",
		"kind", string(kind), "id", id.String(), "operation", operation, "error", err.Error())
	if stale == nil {
		return
	}
	entry := &types.StaleIndexEntry{
		EntityKind: string(kind),
		EntityID:   id.String(),
		Operation:  operation,
		Reason:     err.Error(),
		Details:    datatypes.JSON(fmt.Sprintf(`{"error":%q}`, err.Error())),
	}
	if _, rerr := stale.Record(ctx, nil, entry); rerr != nil {
		log.Error("stale index entry not recorded",
			"kind", string(kind), "id", id.String(), "error", rerr.Error())
	}
}
