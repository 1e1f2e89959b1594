// Package exam implements the exam lifecycle: registry, question bank,
// student attempts, scoring, the auto-closer and result reporting.
package exam

import (
	"log/slog"
	"time"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// Publisher receives result events after a submission commits. Publish must
// not block.
type Publisher interface {
	Publish(ev model.ResultEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.ResultEvent) {}

// Service coordinates exam operations on top of the store.
type Service struct {
	store    *store.Store
	events   Publisher
	attempts *attemptTable
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets where result events are sent.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// New creates a Service.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		events:   nopPublisher{},
		attempts: newAttemptTable(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func isStaff(actor model.Principal) bool {
	return actor.Role == model.UserRoleFaculty || actor.Role == model.UserRoleAdmin
}

// canManage reports whether actor may stop, delete or inspect the exam.
func canManage(actor model.Principal, e *model.Exam) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == model.UserRoleFaculty && actor.Subject == e.Owner
}

func isOwner(actor model.Principal, e *model.Exam) bool {
	return actor.Role != model.UserRoleStudent && actor.Subject == e.Owner
}

func requireStudent(actor model.Principal) error {
	if actor.Role != model.UserRoleStudent {
		return apperrors.Forbidden("only students can sit exams")
	}
	return nil
}

func logDenied(op string, actor model.Principal, examID int64) {
	slog.Warn("operation denied", "op", op, "actor", actor.Subject, "role", actor.Role, "exam_id", examID)
}
