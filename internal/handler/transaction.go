package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"

	"github.com/chungtau/txn-webhook/internal/middleware"
	"github.com/chungtau/txn-webhook/internal/status"
)

// StatusReader is the read side used by the transaction endpoints
type StatusReader interface {
	Status(ctx context.Context, transactionID string) (*status.View, error)
	Stats(ctx context.Context) (*status.Stats, error)
}

// TransactionHandler serves transaction lookups
type TransactionHandler struct {
	reader StatusReader
	log    *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(reader StatusReader, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		reader: reader,
		log:    log,
	}
}

// Get handles GET /v1/transactions/:transaction_id
func (h *TransactionHandler) Get(c *gin.Context) {
	transactionID := c.Param("transaction_id")

	view, err := h.reader.Status(c.Request.Context(), transactionID)
	if errors.Is(err, status.ErrNotFound) {
		writeError(c, &APIError{
			HTTPStatus: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    fmt.Sprintf("Transaction %s not found", transactionID),
		})
		return
	}
	if err != nil {
		h.log.Errorf("[%s] %s", middleware.GetRequestID(c), err)
		writeError(c, &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Internal server error while fetching transaction",
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// Stats handles GET /v1/transactions/stats
func (h *TransactionHandler) Stats(c *gin.Context) {
	stats, err := h.reader.Stats(c.Request.Context())
	if err != nil {
		h.log.Errorf("[%s] %s", middleware.GetRequestID(c), err)
		writeError(c, &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Internal server error while counting transactions",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
