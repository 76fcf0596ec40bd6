package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/ehunt/internal/errors"
)

type errorResponse struct {
	Code             int    `json:"code"`
	Reason           string `json:"reason"`
	Message          string `json:"message"`
	RemainingSeconds *int   `json:"remainingSeconds,omitempty"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	status := e.HTTPStatusCode()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"reason", e.Reason,
			"error", err,
		)
	}

	resp := errorResponse{
		Code:    status,
		Reason:  string(e.Reason),
		Message: e.Message,
	}
	if e.RetryAfter > 0 {
		s := e.RemainingSeconds()
		resp.RemainingSeconds = &s
	}
	if e.Reason == errors.ReasonInternal {
		resp.Message = "internal server error"
	}

	c.JSON(status, resp)
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.ReasonInvalidInput,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err),
		))
		return false
	}
	return true
}
