package api

import (
	"net/http"
	"time"

	"examforge/internal/api/handler"
	"examforge/internal/api/middleware"
	"examforge/internal/app/service"
	"examforge/internal/common/security"
	"examforge/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

// Services bundles what the router dispatches to.
type Services struct {
	Auth        *service.AuthService
	Exams       *service.ExamService
	Questions   *service.QuestionService
	Submissions *service.SubmissionService
	Results     *service.ResultService
	Webhooks    *service.WebhookService
}

func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies a bearer token when present and puts its claims in the context.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	examHandler := handler.NewExamHandler(s.Exams, s.Submissions)
	questionHandler := handler.NewQuestionHandler(s.Questions, s.Submissions)
	submissionHandler := handler.NewSubmissionHandler(s.Submissions)
	resultHandler := handler.NewResultHandler(s.Results)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/auth", handler.NewAuthHandler(s.Auth).RegisterRoutes)
		// Authenticated by a shared secret, not a user token.
		v1.Route("/webhook", handler.NewWebhookHandler(s.Webhooks).RegisterRoutes)

		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.Authenticator)

			authed.Route("/exams", func(exams chi.Router) {
				examHandler.RegisterRoutes(exams)
				exams.Route("/{examID}/questions", questionHandler.RegisterExamRoutes)
				exams.Route("/{examID}/results", resultHandler.RegisterRoutes)
			})
			authed.Route("/questions", questionHandler.RegisterRoutes)
			authed.Route("/submissions", submissionHandler.RegisterRoutes)
		})
	})

	return r
}
