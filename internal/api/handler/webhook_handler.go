package handler

import (
	"log"
	"net/http"

	"examforge/internal/app/service"
	"examforge/internal/common"

	"github.com/go-chi/chi/v5"
)

const webhookSecretHeader = "X-Webhook-Secret"

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(ws *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: ws}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/evaluation", h.handleEvaluationResult)
}

func (h *WebhookHandler) handleEvaluationResult(w http.ResponseWriter, r *http.Request) {
	if !h.webhookService.Enabled() {
		common.RespondWithError(w, http.StatusServiceUnavailable, "Webhook is not configured")
		return
	}
	if !h.webhookService.Authorize(r.Header.Get(webhookSecretHeader)) {
		common.RespondWithError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var payload service.EvaluationResultPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	applied, err := h.webhookService.HandleEvaluationResult(r.Context(), payload)
	if err != nil {
		log.Printf("ERROR: Webhook: Error handling result for submission %s: %v", payload.SubmissionID, err)
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}
