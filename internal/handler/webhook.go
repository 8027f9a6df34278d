package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chungtau/txn-webhook/internal/ingest"
	"github.com/chungtau/txn-webhook/internal/model"
)

// Ingester is the part of the ingestion coordinator the webhook endpoint needs
type Ingester interface {
	Ingest(ctx context.Context, sub model.Submission) ingest.Result
}

// WebhookHandler receives transaction webhooks
type WebhookHandler struct {
	ingester Ingester
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingester Ingester) *WebhookHandler {
	return &WebhookHandler{
		ingester: ingester,
	}
}

// AcceptedResponse acknowledges a delivery before it is processed
type AcceptedResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Receive handles POST /v1/webhooks/transactions
func (h *WebhookHandler) Receive(c *gin.Context) {
	var sub model.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		writeError(c, &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "INVALID_REQUEST",
			Message:    "Invalid request body: " + err.Error(),
		})
		return
	}

	res := h.ingester.Ingest(c.Request.Context(), sub)
	if apiErr := IngestToHTTPError(res); apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:    "ACCEPTED",
		Message:   res.Message,
		Timestamp: model.FormatTimestamp(res.Timestamp),
	})
}
