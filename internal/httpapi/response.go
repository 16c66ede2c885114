package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

// Error codes clients branch on.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the error envelope returned by every endpoint.
//
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "alert not found"
//	}
type ErrorResponse struct {
	RequestID string   `json:"request_id,omitempty"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Problems  []string `json:"problems,omitempty"`
}

// fail aborts the request with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get(requestIDHeader)
	if status >= http.StatusInternalServerError {
		loggerFrom(c).Error("api error",
			zap.Int("status", status),
			zap.String("code", resp.Code),
			zap.String("message", resp.Message),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}

// failErr maps a service error onto the error taxonomy. Internal details
// never reach the client.
func failErr(c *gin.Context, err error, notFoundMsg string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:     ErrCodeBadRequest,
			Message:  strings.Join(verr.Problems, "; "),
			Problems: verr.Problems,
		})
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrUnauthorized):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	default:
		loggerFrom(c).Error("request failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
