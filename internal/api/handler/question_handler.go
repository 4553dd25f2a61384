package handler

import (
	"net/http"

	"examforge/internal/api/middleware"
	"examforge/internal/app/service"
	"examforge/internal/common"
	"examforge/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type QuestionHandler struct {
	questionService   *service.QuestionService
	submissionService *service.SubmissionService
}

func NewQuestionHandler(qs *service.QuestionService, ss *service.SubmissionService) *QuestionHandler {
	return &QuestionHandler{questionService: qs, submissionService: ss}
}

// RegisterExamRoutes serves /exams/{examID}/questions.
func (h *QuestionHandler) RegisterExamRoutes(r chi.Router) {
	r.Get("/", h.listQuestions)
	r.With(middleware.AdminOnly).Post("/", h.addQuestion)
}

// RegisterRoutes serves /questions. It expects an authenticated router.
func (h *QuestionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{questionID}", h.getQuestion)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Patch("/{questionID}", h.updateQuestion)
		admin.Delete("/{questionID}", h.removeQuestion)
		admin.Put("/{questionID}/points", h.updatePoints)
		admin.Post("/{questionID}/archive", h.archiveQuestion)
		admin.Post("/{questionID}/restore", h.restoreQuestion)
		admin.Post("/{questionID}/test-cases", h.addTestCase)
		admin.Delete("/{questionID}/test-cases/{testCaseID}", h.removeTestCase)
		admin.Post("/{questionID}/regrade", h.regrade)
	})

	r.Group(func(candidate chi.Router) {
		candidate.Use(middleware.CandidateOnly)
		candidate.Get("/{questionID}/submission", h.mySubmission)
		candidate.Put("/{questionID}/submission/problem", h.saveProblem)
		candidate.Put("/{questionID}/submission/written", h.saveWritten)
		candidate.Put("/{questionID}/submission/mcq", h.saveMcq)
	})
}

func (h *QuestionHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	_, role, ok := caller(w, r)
	if !ok {
		return
	}
	questions, err := h.questionService.ListByExam(r.Context(), chi.URLParam(r, "examID"), role)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, questions)
}

func (h *QuestionHandler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var req service.AddQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.questionService.AddQuestion(r.Context(), chi.URLParam(r, "examID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, q)
}

func (h *QuestionHandler) getQuestion(w http.ResponseWriter, r *http.Request) {
	_, role, ok := caller(w, r)
	if !ok {
		return
	}
	q, err := h.questionService.Get(r.Context(), chi.URLParam(r, "questionID"), role)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.questionService.UpdateQuestion(r.Context(), chi.URLParam(r, "questionID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) removeQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.questionService.RemoveQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionHandler) updatePoints(w http.ResponseWriter, r *http.Request) {
	var req service.UpdatePointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.questionService.UpdateQuestionPoints(r.Context(), chi.URLParam(r, "questionID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) archiveQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questionService.ArchiveQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) restoreQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questionService.RestoreQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) addTestCase(w http.ResponseWriter, r *http.Request) {
	var req service.TestCaseInput
	if !decodeJSON(w, r, &req) {
		return
	}
	tc, err := h.questionService.AddTestCase(r.Context(), chi.URLParam(r, "questionID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, tc)
}

func (h *QuestionHandler) removeTestCase(w http.ResponseWriter, r *http.Request) {
	err := h.questionService.RemoveTestCase(r.Context(), chi.URLParam(r, "questionID"), chi.URLParam(r, "testCaseID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionHandler) regrade(w http.ResponseWriter, r *http.Request) {
	var req service.RegradeRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.submissionService.Regrade(r.Context(), chi.URLParam(r, "questionID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, map[string]int{"enqueued": n})
}

func (h *QuestionHandler) mySubmission(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	sub, err := h.submissionService.GetForCandidate(r.Context(), chi.URLParam(r, "questionID"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

func (h *QuestionHandler) saveProblem(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.SaveProblemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissionService.SaveProblemSubmission(r.Context(), chi.URLParam(r, "questionID"), userID, req)
	respondSaved(w, sub, err)
}

func (h *QuestionHandler) saveWritten(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.SaveWrittenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissionService.SaveWrittenSubmission(r.Context(), chi.URLParam(r, "questionID"), userID, req)
	respondSaved(w, sub, err)
}

func (h *QuestionHandler) saveMcq(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.SaveMcqRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissionService.SaveMcqSubmission(r.Context(), chi.URLParam(r, "questionID"), userID, req)
	respondSaved(w, sub, err)
}

// respondSaved answers 201 for a first save and 200 for a resubmission.
func respondSaved(w http.ResponseWriter, sub *model.Submission, err error) {
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	status := http.StatusOK
	if sub.Attempts == 1 {
		status = http.StatusCreated
	}
	common.RespondWithJSON(w, status, sub)
}
