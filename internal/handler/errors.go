package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chungtau/txn-webhook/internal/ingest"
)

// APIError is the JSON error body returned by every endpoint
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// IngestToHTTPError maps a rejected ingestion to its HTTP error. Accepted and
// duplicate deliveries are acknowledged and map to nil.
func IngestToHTTPError(res ingest.Result) *APIError {
	switch res.Outcome {
	case ingest.Accepted, ingest.Duplicate:
		return nil

	case ingest.Invalid:
		return &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "INVALID_ARGUMENT",
			Message:    res.Message,
		}

	case ingest.Unavailable:
		return &APIError{
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       "SERVICE_UNAVAILABLE",
			Message:    res.Message,
		}

	case ingest.Failed:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    res.Message,
		}

	default:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "UNKNOWN_ERROR",
			Message:    "An unexpected error occurred",
		}
	}
}

func writeError(c *gin.Context, apiErr *APIError) {
	c.JSON(apiErr.HTTPStatus, apiErr)
}
