package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"examforge/internal/common"
	"examforge/internal/domain/ledger"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
	"examforge/internal/platform/events"
	"examforge/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	minTitleLength     = 3
	maxTitleLength     = 200
	maxDurationMinutes = 1440
)

type ExamService struct {
	tx           repository.Transactor
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
	notifier     events.Notifier
	clock        common.Clock
}

func NewExamService(
	tx repository.Transactor,
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	notifier events.Notifier,
	clock common.Clock,
) *ExamService {
	return &ExamService{
		tx:           tx,
		examRepo:     examRepo,
		questionRepo: questionRepo,
		notifier:     notifier,
		clock:        clock,
	}
}

type CreateExamRequest struct {
	Title           string    `json:"title" validate:"required,min=3,max=200"`
	Description     *string   `json:"description" validate:"omitempty,max=10000"`
	OpensAt         time.Time `json:"opens_at" validate:"required"`
	ClosesAt        time.Time `json:"closes_at" validate:"required,gtfield=OpensAt"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

type InviteCandidatesRequest struct {
	Emails []string `json:"emails" validate:"required,min=1,max=500,dive,required,email"`
}

type InviteCandidatesResponse struct {
	Invited int `json:"invited"`
	Failed  int `json:"failed"`
}

func (s *ExamService) view(e *model.Exam) *model.ExamView {
	return &model.ExamView{Exam: *e, Status: e.Status(s.clock.Now())}
}

// checkSchedule validates the fields a metadata patch can leave inconsistent.
func checkSchedule(e *model.Exam) error {
	var errs []common.FieldError
	if n := utf8.RuneCountInString(strings.TrimSpace(e.Title)); n < minTitleLength || n > maxTitleLength {
		errs = append(errs, common.FieldError{Field: "title", Rule: "len", Message: "title must be between 3 and 200 characters"})
	}
	if !e.ClosesAt.After(e.OpensAt) {
		errs = append(errs, common.FieldError{Field: "closes_at", Rule: "gtfield", Message: "closes_at must be after opens_at"})
	}
	if e.DurationMinutes < 1 || e.DurationMinutes > maxDurationMinutes {
		errs = append(errs, common.FieldError{Field: "duration_minutes", Rule: "range", Message: "duration_minutes must be between 1 and 1440"})
	} else if e.ClosesAt.After(e.OpensAt) && time.Duration(e.DurationMinutes)*time.Minute > e.ClosesAt.Sub(e.OpensAt) {
		errs = append(errs, common.FieldError{Field: "duration_minutes", Rule: "window", Message: "duration_minutes must fit between opens_at and closes_at"})
	}
	if len(errs) > 0 {
		return &common.ValidationError{Fields: errs}
	}
	return nil
}

func (s *ExamService) Create(ctx context.Context, adminID string, req CreateExamRequest) (*model.ExamView, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	exam := &model.Exam{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		OpensAt:         req.OpensAt.UTC(),
		ClosesAt:        req.ClosesAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		IsPublished:     false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	exam.Slug = slug.Make(exam.Title)
	if adminID != "" {
		exam.CreatedByID = &adminID
	}
	if err := checkSchedule(exam); err != nil {
		return nil, err
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, common.Errorf("failed to create exam: %w", err)
	}
	log.Printf("INFO: Exam %s (%s) created.", exam.ID, exam.Slug)
	return s.view(exam), nil
}

// Get returns an exam. Candidates only see published exams.
func (s *ExamService) Get(ctx context.Context, examID, role string) (*model.ExamView, error) {
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleAdmin && !exam.IsPublished {
		return nil, common.Errorf("exam %s: %w", examID, common.ErrNotFound)
	}
	return s.view(exam), nil
}

func (s *ExamService) List(ctx context.Context, role string) ([]model.ExamView, error) {
	exams, err := s.examRepo.List(ctx, role != model.RoleAdmin)
	if err != nil {
		return nil, common.Errorf("failed to list exams: %w", err)
	}
	views := make([]model.ExamView, 0, len(exams))
	for i := range exams {
		views = append(views, *s.view(&exams[i]))
	}
	return views, nil
}

func (s *ExamService) UpdateMetadata(ctx context.Context, examID string, patch model.ExamMetadataPatch) (*model.ExamView, error) {
	var updated *model.Exam
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exam, err := s.examRepo.FindByIDForUpdate(ctx, examID)
		if err != nil {
			return err
		}
		if err := exam.ApplyMetadata(patch); err != nil {
			return err
		}
		if patch.Title.HasValue() {
			exam.Title = strings.TrimSpace(exam.Title)
			exam.Slug = slug.Make(exam.Title)
		}
		if err := checkSchedule(exam); err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = exam
			return nil
		}
		exam.UpdatedAt = s.clock.Now()
		if err := s.examRepo.UpdateMetadata(ctx, exam); err != nil {
			return err
		}
		updated = exam
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(updated), nil
}

// Publish closes the exam for edits once its ledger total matches the points
// of its active questions.
func (s *ExamService) Publish(ctx context.Context, examID string) (*model.ExamView, error) {
	var published *model.Exam
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exam, err := s.examRepo.FindByIDForUpdate(ctx, examID)
		if err != nil {
			return err
		}
		questions, err := s.questionRepo.ListByExam(ctx, examID)
		if err != nil {
			return err
		}
		if err := exam.Publish(ledger.ActivePoints(questions)); err != nil {
			return err
		}
		if err := s.examRepo.MarkPublished(ctx, examID); err != nil {
			return err
		}
		published = exam
		return nil
	})
	if err != nil {
		metrics.PublishAttempts.WithLabelValues(publishOutcome(err)).Inc()
		return nil, err
	}
	metrics.PublishAttempts.WithLabelValues("success").Inc()
	log.Printf("INFO: Exam %s published with %s total points.", examID, published.Ledger.TotalPoints)

	if err := s.notifier.ExamPublished(ctx, published.ID, published.Title, published.OpensAt, published.ClosesAt, published.Ledger.TotalPoints.String()); err != nil {
		log.Printf("WARN: Failed to send publish notification for exam %s: %v", examID, err)
	}
	return s.view(published), nil
}

func publishOutcome(err error) string {
	switch {
	case errors.Is(err, common.ErrAlreadyPublished):
		return "already_published"
	case errors.Is(err, common.ErrPointsMismatch):
		return "points_mismatch"
	}
	return "error"
}

// Delete removes an unpublished exam together with its questions.
func (s *ExamService) Delete(ctx context.Context, examID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exam, err := s.examRepo.FindByIDForUpdate(ctx, examID)
		if err != nil {
			return err
		}
		if err := exam.EnsureEditable(); err != nil {
			return err
		}
		return s.examRepo.Delete(ctx, examID)
	})
}

// InviteCandidates sends one invitation per address. The exam must be published.
func (s *ExamService) InviteCandidates(ctx context.Context, examID string, req InviteCandidatesRequest) (*InviteCandidatesResponse, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return nil, common.Errorf("exam must be published before candidates are invited: %w", common.ErrConflict)
	}
	if exam.Status(s.clock.Now()) == model.ExamEnded {
		return nil, common.Errorf("exam has ended: %w", common.ErrConflict)
	}

	resp := &InviteCandidatesResponse{}
	seen := make(map[string]struct{}, len(req.Emails))
	for _, email := range req.Emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		if err := s.notifier.CandidateInvited(ctx, exam.ID, exam.Title, email, exam.OpensAt); err != nil {
			log.Printf("WARN: Failed to send invitation for exam %s to %s: %v", exam.ID, email, err)
			resp.Failed++
			continue
		}
		resp.Invited++
	}
	return resp, nil
}

// CheckLedger compares the stored ledger with one recomputed from the catalog.
func (s *ExamService) CheckLedger(ctx context.Context, examID string) (*model.LedgerReport, error) {
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	report := ledger.Check(exam, questions)
	if report.Drifted {
		metrics.LedgerDrift.Inc()
		log.Printf("WARN: Ledger drift on exam %s: stored total %s, computed %s", examID, report.Stored.TotalPoints, report.Computed.TotalPoints)
	}
	return &report, nil
}

// ReconcileLedger rewrites a drifted ledger from the catalog. Published exams
// are never rewritten; drift on them is reported as a conflict.
func (s *ExamService) ReconcileLedger(ctx context.Context, examID string) (*model.LedgerReport, error) {
	var report model.LedgerReport
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exam, err := s.examRepo.FindByIDForUpdate(ctx, examID)
		if err != nil {
			return err
		}
		questions, err := s.questionRepo.ListByExam(ctx, examID)
		if err != nil {
			return err
		}
		report = ledger.Check(exam, questions)
		if !report.Drifted {
			return nil
		}
		metrics.LedgerDrift.Inc()
		if exam.IsPublished {
			return common.Errorf("ledger of exam %s drifted (stored %s, computed %s): %w",
				examID, report.Stored.TotalPoints, report.Computed.TotalPoints, common.ErrExamPublished)
		}
		if err := s.examRepo.ReplaceLedger(ctx, examID, report.Computed); err != nil {
			return err
		}
		report.Repaired = true
		report.Publishable = report.Computed.TotalPoints == report.ActivePoints
		for _, c := range model.Categories {
			if report.Stored.Category(c) != report.Computed.Category(c) {
				metrics.LedgerMutations.WithLabelValues(string(c), "reconcile").Inc()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report.Repaired {
		log.Printf("INFO: Ledger of exam %s reconciled to total %s", examID, report.Computed.TotalPoints)
	}
	return &report, nil
}
