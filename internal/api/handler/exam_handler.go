package handler

import (
	"net/http"

	"examforge/internal/api/middleware"
	"examforge/internal/app/service"
	"examforge/internal/common"
	"examforge/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ExamHandler struct {
	examService       *service.ExamService
	submissionService *service.SubmissionService
}

func NewExamHandler(es *service.ExamService, ss *service.SubmissionService) *ExamHandler {
	return &ExamHandler{examService: es, submissionService: ss}
}

// RegisterRoutes expects an authenticated router.
func (h *ExamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listExams)
	r.Get("/{examID}", h.getExam)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Post("/", h.createExam)
		admin.Patch("/{examID}", h.updateExam)
		admin.Delete("/{examID}", h.deleteExam)
		admin.Post("/{examID}/publish", h.publishExam)
		admin.Post("/{examID}/invitations", h.inviteCandidates)
		admin.Get("/{examID}/ledger", h.checkLedger)
		admin.Post("/{examID}/ledger/reconcile", h.reconcileLedger)
		admin.Post("/{examID}/mcq/autograde", h.autoGradeMcq)
	})
}

func (h *ExamHandler) createExam(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.CreateExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	exam, err := h.examService.Create(r.Context(), userID, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, exam)
}

func (h *ExamHandler) listExams(w http.ResponseWriter, r *http.Request) {
	_, role, ok := caller(w, r)
	if !ok {
		return
	}
	exams, err := h.examService.List(r.Context(), role)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exams)
}

func (h *ExamHandler) getExam(w http.ResponseWriter, r *http.Request) {
	_, role, ok := caller(w, r)
	if !ok {
		return
	}
	exam, err := h.examService.Get(r.Context(), chi.URLParam(r, "examID"), role)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exam)
}

func (h *ExamHandler) updateExam(w http.ResponseWriter, r *http.Request) {
	var patch model.ExamMetadataPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	exam, err := h.examService.UpdateMetadata(r.Context(), chi.URLParam(r, "examID"), patch)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exam)
}

func (h *ExamHandler) deleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.examService.Delete(r.Context(), chi.URLParam(r, "examID")); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExamHandler) publishExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.examService.Publish(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exam)
}

func (h *ExamHandler) inviteCandidates(w http.ResponseWriter, r *http.Request) {
	var req service.InviteCandidatesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.examService.InviteCandidates(r.Context(), chi.URLParam(r, "examID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, resp)
}

func (h *ExamHandler) checkLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.examService.CheckLedger(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, report)
}

func (h *ExamHandler) reconcileLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.examService.ReconcileLedger(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, report)
}

func (h *ExamHandler) autoGradeMcq(w http.ResponseWriter, r *http.Request) {
	graded, err := h.submissionService.AutoGradeMcq(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]int{"graded": graded})
}
