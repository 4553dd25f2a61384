package handler

import (
	"net/http"

	"examforge/internal/api/middleware"
	"examforge/internal/app/service"
	"examforge/internal/common"

	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

// RegisterRoutes expects an authenticated router. Saves live under /questions.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{submissionID}", h.getSubmission)
	r.With(middleware.AdminOnly).Put("/{submissionID}/score", h.gradeSubmission)
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	sub, err := h.submissionService.Get(r.Context(), chi.URLParam(r, "submissionID"), userID, role)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) gradeSubmission(w http.ResponseWriter, r *http.Request) {
	var req service.GradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissionService.GradeSubmission(r.Context(), chi.URLParam(r, "submissionID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}
