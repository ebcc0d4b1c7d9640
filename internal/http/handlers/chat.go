package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/http/response"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/services"
	"github.com/yungbote/taskbridge-backend/internal/sse"
)

const heartbeatInterval = 15 * time.Second

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "Chat"), chat: chat}
}

// Chat runs one conversational turn. Pipeline failures surface as 200s
// with a friendly answer; non-2xx is reserved for malformed requests.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	resp, err := h.chat.Process(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, resp)
}

// ChatStream is the SSE flavor of Chat. Events are pumped through a
// single loop so heartbeats and pipeline events never interleave.
func (h *ChatHandler) ChatStream(c *gin.Context) {
	req := services.ChatRequest{
		Query:     strings.TrimSpace(c.Query("query")),
		SessionID: strings.TrimSpace(c.Query("sessionId")),
	}
	if req.Query == "" {
		response.RespondError(c, http.StatusBadRequest, "bad_request", errors.New("query parameter is required"))
		return
	}
	sw, err := sse.NewWriter(c.Writer)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}

	ctx := c.Request.Context()
	events := make(chan services.ChatStreamEvent, 8)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		errc <- h.chat.ProcessStream(ctx, req, func(ev services.ChatStreamEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := <-errc; err != nil {
					h.log.Error("chat stream failed", "error", err.Error())
					_ = sw.Send("error", services.ChatStreamEvent{Type: "error", Error: "stream failed"})
				}
				return
			}
			if err := sw.Send(ev.Type, ev); err != nil {
				h.log.Warn("sse write failed", "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = sw.Comment("ping")
		case <-ctx.Done():
			return
		}
	}
}
