package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps a pipeline error kind onto an HTTP status.
// Unrecognized kinds fall through to 500.
func RespondServiceError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	case errs.KindUpstream:
		status = http.StatusBadGateway
	}
	RespondError(c, status, string(kind), err)
}
