package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/types"
)

// Error codes returned in ErrorDetail.Code.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidProject   = "INVALID_PROJECT_ID"
	CodeAlreadyVoted     = "ALREADY_VOTED"
	CodeVoteConflict     = "VOTE_CONFLICT"
	CodeFeeDeclined      = "FEE_TRANSFER_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Data      any    `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse wraps every failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Data: data, RequestID: c.GetString(requestIDKey)})
}

func fail(c *gin.Context, err error) {
	status, code := classify(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   err.Error(),
		RequestID: c.GetString(requestIDKey),
	}})
	if status >= http.StatusInternalServerError {
		_ = c.Error(err) //nolint:errcheck // recorded for the request logger
	}
}

// classify maps engine errors onto HTTP status codes.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ballot.ErrInvalidProjectID):
		return http.StatusNotFound, CodeInvalidProject
	case errors.Is(err, ballot.ErrAlreadyVoted):
		return http.StatusConflict, CodeAlreadyVoted
	case errors.Is(err, ballot.ErrVoteConflict):
		return http.StatusConflict, CodeVoteConflict
	case errors.Is(err, ballot.ErrFeeTransferFailed):
		return http.StatusPaymentRequired, CodeFeeDeclined
	case errors.Is(err, ballot.ErrMissingCaller), errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, ballot.ErrUnauthorized):
		return http.StatusForbidden, CodePermissionDenied
	case errors.Is(err, ballot.ErrInvalidInput), errors.Is(err, ballot.ErrInvalidFee),
		errors.Is(err, types.ErrInvalidAmount):
		return http.StatusBadRequest, CodeInvalidArgument
	case ballot.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ballot.ErrStoreClosed), errors.Is(err, ballot.ErrStoreNotReady):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
