package handler

import (
	"net/http"

	"examforge/internal/api/middleware"
	"examforge/internal/app/service"
	"examforge/internal/common"

	"github.com/go-chi/chi/v5"
)

type ResultHandler struct {
	resultService *service.ResultService
}

func NewResultHandler(rs *service.ResultService) *ResultHandler {
	return &ResultHandler{resultService: rs}
}

// RegisterRoutes serves /exams/{examID}/results.
func (h *ResultHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.CandidateOnly).Get("/me", h.myResult)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Get("/", h.listResults)
		admin.Get("/{candidateID}", h.candidateResult)
	})
}

func (h *ResultHandler) listResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.resultService.ListExamResults(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, results)
}

func (h *ResultHandler) candidateResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.resultService.GetCandidateResult(r.Context(), chi.URLParam(r, "examID"), chi.URLParam(r, "candidateID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, res)
}

func (h *ResultHandler) myResult(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := h.resultService.GetCandidateResult(r.Context(), chi.URLParam(r, "examID"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, res)
}
