package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
)

// Sweep closes every ACTIVE exam whose deadline has passed and returns how
// many it closed. A failure on one exam does not stop the sweep.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	active, err := s.store.ListExamsByStatus(ctx, model.ExamActive)
	if err != nil {
		return 0, fmt.Errorf("list active exams: %w", err)
	}
	now := s.now()
	var (
		closed int
		errs   []error
	)
	for _, e := range active {
		if now.Before(e.Deadline()) {
			continue
		}
		if _, err := s.CloseExam(ctx, model.SystemPrincipal, e.ID); err != nil {
			slog.Error("auto-close failed", "exam_id", e.ID, "error", err)
			errs = append(errs, fmt.Errorf("close exam %d: %w", e.ID, err))
			continue
		}
		closed++
	}
	if err := s.pruneAttempts(ctx); err != nil {
		errs = append(errs, err)
	}
	return closed, errors.Join(errs...)
}

// pruneAttempts drops open attempts of exams that are no longer ACTIVE.
func (s *Service) pruneAttempts(ctx context.Context) error {
	for _, id := range s.attempts.examIDs() {
		e, err := s.store.GetExam(ctx, id)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			s.attempts.discardExam(id)
			continue
		}
		if err != nil {
			return fmt.Errorf("check exam %d: %w", id, err)
		}
		if e.Status != model.ExamActive {
			s.attempts.discardExam(id)
			slog.Debug("dropped stale attempts", "exam_id", id)
		}
	}
	return nil
}

// PurgeExpiredTokens drops revocation entries whose tokens have expired.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.CleanupExpiredTokens(ctx, s.now())
}

// AutoCloser runs Sweep on a fixed schedule.
type AutoCloser struct {
	svc     *Service
	cron    *cron.Cron
	timeout time.Duration
}

// NewAutoCloser schedules a sweep every interval. Overlapping runs are skipped.
func NewAutoCloser(svc *Service, interval time.Duration) (*AutoCloser, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	ac := &AutoCloser{svc: svc, cron: c, timeout: max(interval, 10*time.Second)}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), ac.run); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return ac, nil
}

func (ac *AutoCloser) run() {
	ctx, cancel := context.WithTimeout(context.Background(), ac.timeout)
	defer cancel()

	n, err := ac.svc.Sweep(ctx)
	if err != nil {
		slog.Error("sweep finished with errors", "closed", n, "error", err)
	} else if n > 0 {
		slog.Info("sweep closed exams", "closed", n)
	}
	if purged, err := ac.svc.PurgeExpiredTokens(ctx); err != nil {
		slog.Error("token cleanup failed", "error", err)
	} else if purged > 0 {
		slog.Debug("purged expired tokens", "count", purged)
	}
}

// Start begins the schedule in its own goroutine.
func (ac *AutoCloser) Start() {
	ac.cron.Start()
	slog.Info("auto-closer started", "entries", len(ac.cron.Entries()))
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (ac *AutoCloser) Stop(ctx context.Context) {
	select {
	case <-ac.cron.Stop().Done():
	case <-ctx.Done():
	}
}
