package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/apperrors"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

var (
	t0      = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cohortA = model.Cohort{Year: "Y2", Branch: "CS", Section: "A"}
	cohortB = model.Cohort{Year: "Y2", Branch: "CS", Section: "B"}

	admin   = model.Principal{Subject: "admin", Role: model.UserRoleAdmin}
	prof    = model.Principal{Subject: "prof", Role: model.UserRoleFaculty}
	other   = model.Principal{Subject: "other", Role: model.UserRoleFaculty}
	stu101  = model.Principal{Subject: "101", Role: model.UserRoleStudent}
	stu102  = model.Principal{Subject: "102", Role: model.UserRoleStudent}
	stuB201 = model.Principal{Subject: "201", Role: model.UserRoleStudent}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ResultEvent
}

func (p *recordingPublisher) Publish(ev model.ResultEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	svc   *Service
	store *store.Store
	clock *fakeClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, clock: &fakeClock{now: t0}, pub: &recordingPublisher{}}
	f.svc = New(st, WithClock(f.clock.Now), WithPublisher(f.pub))

	ctx := context.Background()
	rosters := []struct {
		cohort model.Cohort
		rows   []model.RosterRow
	}{
		{cohortA, []model.RosterRow{{Roll: "101", Name: "Anil", Parent: "9848012345"}, {Roll: "102", Name: "Bhavya", Parent: "+919848054321"}}},
		{cohortB, []model.RosterRow{{Roll: "201", Name: "Chaitra"}}},
	}
	for _, r := range rosters {
		if _, err := f.svc.ImportRoster(ctx, admin, r.cohort, r.rows); err != nil {
			t.Fatalf("ImportRoster: %v", err)
		}
	}
	return f
}

func sampleRows() []model.QuestionRow {
	return []model.QuestionRow{
		{Prompt: "2+2?", A: "3", B: "4", C: "5", D: "6", Correct: " B "},
		{Prompt: "Capital of India?", A: "Mumbai", B: "Chennai", C: "New Delhi", D: "Kolkata", Correct: "New Delhi"},
	}
}

// draftExam creates a 30-minute exam for cohortA with the sample questions.
func (f *fixture) draftExam(t *testing.T) *model.Exam {
	t.Helper()
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, prof, NewExam{Cohort: cohortA, DurationMinutes: 30})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if _, err := f.svc.ImportQuestions(ctx, prof, e.ID, sampleRows()); err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	return e
}

func (f *fixture) activeExam(t *testing.T) *model.Exam {
	t.Helper()
	e := f.draftExam(t)
	e, err := f.svc.ActivateExam(context.Background(), prof, e.ID)
	if err != nil {
		t.Fatalf("ActivateExam: %v", err)
	}
	return e
}

// correctAnswers answers every question of the attempt correctly.
func correctAnswers(view *model.AttemptView) map[int64]string {
	answers := make(map[int64]string)
	for _, q := range view.Questions {
		switch q.Prompt {
		case "2+2?":
			answers[q.ID] = "b"
		case "Capital of India?":
			answers[q.ID] = "C"
		}
	}
	return answers
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.activeExam(t)
	if e.Status != model.ExamActive || e.StartTime == nil || !e.StartTime.Equal(t0) {
		t.Fatalf("unexpected exam after activation: %+v", e)
	}

	view, err := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if len(view.Questions) != 2 {
		t.Fatalf("attempt has %d questions, want 2", len(view.Questions))
	}
	if view.RemainingSeconds != 30*60 {
		t.Errorf("remaining = %d, want 1800", view.RemainingSeconds)
	}

	f.clock.Set(t0.Add(5 * time.Minute))
	sub, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, correctAnswers(view))
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if sub.Score != 2 || sub.QuestionCount != 2 {
		t.Errorf("submission = %+v, want score 2 of 2", sub)
	}
	res, err := f.store.GetResult(ctx, "101", e.ID)
	if err != nil || res.Score != 2 {
		t.Fatalf("stored result = %+v, %v", res, err)
	}
	if n, _ := f.store.AttendanceCount(ctx, e.ID); n != 1 {
		t.Errorf("attendance rows = %d, want 1", n)
	}
	if f.pub.count() != 1 {
		t.Fatalf("published %d events, want 1", f.pub.count())
	}
	if ev := f.pub.events[0]; ev.Roll != "101" || ev.Score != 2 || ev.Total != 2 || ev.Cohort != cohortA {
		t.Errorf("unexpected event: %+v", ev)
	}

	f.clock.Set(t0.Add(31 * time.Minute))
	closed, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if closed != 1 {
		t.Errorf("sweep closed %d exams, want 1", closed)
	}

	got, _ := f.store.GetExam(ctx, e.ID)
	if got.Status != model.ExamClosed {
		t.Errorf("status = %s, want CLOSED", got.Status)
	}
	a, err := f.svc.GetArchive(ctx, stu102, e.ID)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if len(a.Questions) != 2 {
		t.Errorf("archive has %d rows, want 2", len(a.Questions))
	}
	if live, _ := f.store.QuestionCount(ctx, e.ID); live != 0 {
		t.Errorf("%d live questions remain", live)
	}

	again, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, nil)
	if !apperrors.Is(err, apperrors.ErrAlreadyRecorded) {
		t.Fatalf("resubmit: expected AlreadyRecorded, got %v", err)
	}
	if again.Score != 2 {
		t.Errorf("resubmit score = %d, want stored 2", again.Score)
	}
	if f.pub.count() != 1 {
		t.Errorf("resubmit published an event")
	}
}

func TestCreateExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Principal
		in    NewExam
		kind  error
	}{
		{"zero duration", prof, NewExam{Cohort: cohortA, DurationMinutes: 0}, apperrors.ErrValidation},
		{"missing branch", prof, NewExam{Cohort: model.Cohort{Year: "Y2"}, DurationMinutes: 30}, apperrors.ErrValidation},
		{"blank cohort", prof, NewExam{Cohort: model.Cohort{Year: "  ", Branch: " "}, DurationMinutes: 30}, apperrors.ErrValidation},
		{"unknown cohort", prof, NewExam{Cohort: model.Cohort{Year: "Y4", Branch: "ME"}, DurationMinutes: 30}, apperrors.ErrNotFound},
		{"student", stu101, NewExam{Cohort: cohortA, DurationMinutes: 30}, apperrors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateExam(ctx, tt.actor, tt.in)
			if !apperrors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	e, err := f.svc.CreateExam(ctx, prof, NewExam{Cohort: model.Cohort{Year: " Y2 ", Branch: "CS", Section: "A"}, DurationMinutes: 45})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.Status != model.ExamDraft || e.Owner != "prof" || e.ExamDate != "2026-03-02" || e.Cohort != cohortA {
		t.Errorf("unexpected exam: %+v", e)
	}
}

func TestImportQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, prof, NewExam{Cohort: cohortA, DurationMinutes: 30})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	if _, err := f.svc.ImportQuestions(ctx, prof, e.ID, nil); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty import: expected Validation, got %v", err)
	}

	bad := sampleRows()
	bad[1].C = "  "
	_, err = f.svc.ImportQuestions(ctx, prof, e.ID, bad)
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("bad row: expected Validation, got %v", err)
	}
	details := apperrors.Details(err)
	if _, ok := details["row 2"]; !ok || len(details) != 1 {
		t.Errorf("details = %v, want only row 2", details)
	}

	if _, err := f.svc.ImportQuestions(ctx, other, e.ID, sampleRows()); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("non-owner import: expected Forbidden, got %v", err)
	}

	n, err := f.svc.ImportQuestions(ctx, prof, e.ID, sampleRows())
	if err != nil || n != 2 {
		t.Fatalf("ImportQuestions = %d, %v", n, err)
	}
	n, err = f.svc.ImportQuestions(ctx, prof, e.ID, sampleRows()[:1])
	if err != nil || n != 1 {
		t.Fatalf("re-import = %d, %v", n, err)
	}
	qs, _ := f.store.ListQuestions(ctx, e.ID)
	if len(qs) != 1 {
		t.Fatalf("re-import left %d questions, want 1", len(qs))
	}
	if qs[0].CorrectKey != "b" {
		t.Errorf("key stored as %q, want canonical b", qs[0].CorrectKey)
	}

	if _, err := f.svc.ActivateExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("ActivateExam: %v", err)
	}
	if _, err := f.svc.ImportQuestions(ctx, prof, e.ID, sampleRows()); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("import while ACTIVE: expected Forbidden, got %v", err)
	}
}

func TestActivateExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.draftExam(t)

	for _, actor := range []model.Principal{other, admin, stu101} {
		if _, err := f.svc.ActivateExam(ctx, actor, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
			t.Errorf("activate by %s: expected Forbidden, got %v", actor.Subject, err)
		}
	}
	if _, err := f.svc.ActivateExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("ActivateExam: %v", err)
	}
	second := f.draftExam(t)
	if _, err := f.svc.ActivateExam(ctx, prof, second.ID); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second ACTIVE exam: expected Conflict, got %v", err)
	}
	if _, err := f.svc.ActivateExam(ctx, prof, 404); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown exam: expected NotFound, got %v", err)
	}

	if _, err := f.svc.DeleteRoster(ctx, admin, cohortA); err != nil {
		t.Fatalf("DeleteRoster: %v", err)
	}
	if _, err := f.svc.CloseExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("CloseExam: %v", err)
	}
	if _, err := f.svc.ActivateExam(ctx, prof, second.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("activate without roster: expected NotFound, got %v", err)
	}
}

func TestCloseExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	if _, err := f.svc.BeginAttempt(ctx, stu101, e.ID); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if _, err := f.svc.CloseExam(ctx, other, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("close by other faculty: expected Forbidden, got %v", err)
	}
	got, err := f.svc.CloseExam(ctx, admin, e.ID)
	if err != nil {
		t.Fatalf("CloseExam: %v", err)
	}
	if got.Status != model.ExamClosed || got.ClosedAt == nil {
		t.Errorf("unexpected exam after close: %+v", got)
	}
	if f.svc.attempts.len() != 0 {
		t.Errorf("%d attempts survived close", f.svc.attempts.len())
	}
	if _, err := f.svc.CloseExam(ctx, prof, e.ID); err != nil {
		t.Errorf("closing a CLOSED exam should be a no-op, got %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, nil); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("submit after close: expected Forbidden, got %v", err)
	}

	draft := f.draftExam(t)
	if _, err := f.svc.CloseExam(ctx, prof, draft.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("close DRAFT: expected Forbidden, got %v", err)
	}
}

func TestConcurrentClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)
	f.clock.Set(t0.Add(time.Hour))

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Sweep(ctx)
			} else {
				_, err = f.svc.CloseExam(ctx, prof, e.ID)
			}
			if err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()

	a, err := f.store.GetArchive(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if len(a.Questions) != 2 {
		t.Errorf("archive has %d rows, want 2", len(a.Questions))
	}
}

func TestBeginAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draftExam(t)

	if _, err := f.svc.BeginAttempt(ctx, stu101, draft.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("DRAFT exam: expected Forbidden, got %v", err)
	}
	e, err := f.svc.ActivateExam(ctx, prof, draft.ID)
	if err != nil {
		t.Fatalf("ActivateExam: %v", err)
	}
	if _, err := f.svc.BeginAttempt(ctx, stuB201, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("other cohort: expected Forbidden, got %v", err)
	}
	if _, err := f.svc.BeginAttempt(ctx, prof, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("faculty: expected Forbidden, got %v", err)
	}
	ghost := model.Principal{Subject: "999", Role: model.UserRoleStudent}
	if _, err := f.svc.BeginAttempt(ctx, ghost, e.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown student: expected NotFound, got %v", err)
	}
	if _, err := f.svc.BeginAttempt(ctx, stu101, 404); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown exam: expected NotFound, got %v", err)
	}

	first, err := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	f.clock.Set(t0.Add(10 * time.Minute))
	second, err := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt again: %v", err)
	}
	if first.AttemptID != second.AttemptID {
		t.Error("re-view started a new attempt")
	}
	for i := range first.Questions {
		if first.Questions[i].ID != second.Questions[i].ID {
			t.Fatal("re-view changed the question order")
		}
	}
	if second.RemainingSeconds != 20*60 {
		t.Errorf("remaining = %d, want 1200", second.RemainingSeconds)
	}

	f.clock.Set(t0.Add(45 * time.Minute))
	late, err := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt past deadline: %v", err)
	}
	if late.RemainingSeconds != 0 {
		t.Errorf("remaining past deadline = %d, want 0", late.RemainingSeconds)
	}

	if _, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, correctAnswers(first)); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if _, err := f.svc.BeginAttempt(ctx, stu101, e.ID); !apperrors.Is(err, apperrors.ErrAlreadyRecorded) {
		t.Errorf("view after submit: expected AlreadyRecorded, got %v", err)
	}
}

func TestConcurrentSubmitAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)
	view, err := f.svc.BeginAttempt(ctx, stu102, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	scores := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answers := correctAnswers(view)
			if i%2 == 1 {
				answers = nil
			}
			sub, err := f.svc.SubmitAttempt(ctx, stu102, e.ID, answers)
			if err != nil && !apperrors.Is(err, apperrors.ErrAlreadyRecorded) {
				t.Errorf("SubmitAttempt: %v", err)
			}
			scores[i] = sub.Score
		}()
	}
	wg.Wait()

	stored, err := f.store.GetResult(ctx, "102", e.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	for i, s := range scores {
		if s != stored.Score {
			t.Errorf("call %d returned %d, stored %d", i, s, stored.Score)
		}
	}
	if f.pub.count() != 1 {
		t.Errorf("published %d events, want 1", f.pub.count())
	}
}

func TestSweepDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	f.clock.Set(t0.Add(29*time.Minute + 59*time.Second))
	if n, err := f.svc.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("sweep before deadline = %d, %v", n, err)
	}
	f.clock.Set(t0.Add(30 * time.Minute))
	if n, err := f.svc.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("sweep at deadline = %d, %v", n, err)
	}
	got, _ := f.store.GetExam(ctx, e.ID)
	if got.Status != model.ExamClosed {
		t.Errorf("status = %s, want CLOSED", got.Status)
	}
	if n, err := f.svc.Sweep(ctx); err != nil || n != 0 {
		t.Errorf("repeat sweep = %d, %v", n, err)
	}
}

func TestAutoCloser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := NewAutoCloser(f.svc, 0); err == nil {
		t.Error("expected error for zero interval")
	}
	ac, err := NewAutoCloser(f.svc, time.Hour)
	if err != nil {
		t.Fatalf("NewAutoCloser: %v", err)
	}
	ac.Start()
	defer ac.Stop(ctx)

	e := f.activeExam(t)
	f.clock.Set(t0.Add(2 * time.Hour))
	ac.run()

	got, _ := f.store.GetExam(ctx, e.ID)
	if got.Status != model.ExamClosed {
		t.Errorf("status = %s, want CLOSED", got.Status)
	}
}

func TestAnswerKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	if _, err := f.svc.AnswerKey(ctx, prof, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("key before anyone submits: expected Forbidden, got %v", err)
	}
	for _, p := range []model.Principal{stu101, stu102} {
		if _, err := f.svc.SubmitAttempt(ctx, p, e.ID, map[int64]string{}); err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
	}
	key, err := f.svc.AnswerKey(ctx, prof, e.ID)
	if err != nil {
		t.Fatalf("AnswerKey: %v", err)
	}
	if len(key) != 2 || key[0].CorrectKey != "b" {
		t.Errorf("unexpected key: %+v", key)
	}
	if _, err := f.svc.AnswerKey(ctx, other, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("other faculty: expected Forbidden, got %v", err)
	}

	if _, err := f.svc.CloseExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("CloseExam: %v", err)
	}
	key, err = f.svc.AnswerKey(ctx, admin, e.ID)
	if err != nil || len(key) != 2 {
		t.Errorf("key after close = %d rows, %v", len(key), err)
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	view, _ := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if _, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, correctAnswers(view)); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	mon, err := f.svc.Monitor(ctx, prof, e.ID)
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if mon.Total != 2 || mon.Submitted != 1 || mon.Writing != 1 {
		t.Errorf("monitor = %d/%d/%d, want 2/1/1", mon.Total, mon.Submitted, mon.Writing)
	}

	rows, err := f.svc.Attendance(ctx, prof, e.ID)
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	want := map[string]model.AttendanceStatus{"101": model.AttendancePresent, "102": model.AttendanceAbsent}
	for _, r := range rows {
		if want[r.Roll] != r.Status {
			t.Errorf("%s: %s, want %s", r.Roll, r.Status, want[r.Roll])
		}
	}

	mine, err := f.svc.Results(ctx, prof, model.LedgerFilter{})
	if err != nil || len(mine) != 1 {
		t.Errorf("owner results = %d, %v", len(mine), err)
	}
	theirs, err := f.svc.Results(ctx, other, model.LedgerFilter{Owner: "prof"})
	if err != nil || len(theirs) != 0 {
		t.Errorf("other faculty saw %d rows, %v", len(theirs), err)
	}
	all, err := f.svc.Results(ctx, admin, model.LedgerFilter{Year: "Y2"})
	if err != nil || len(all) != 1 {
		t.Errorf("admin results = %d, %v", len(all), err)
	}
	if _, err := f.svc.Results(ctx, stu101, model.LedgerFilter{}); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("student results: expected Forbidden, got %v", err)
	}

	open, err := f.svc.OpenExams(ctx, stu102)
	if err != nil || len(open) != 1 {
		t.Errorf("open exams for 102 = %d, %v", len(open), err)
	}
	open, _ = f.svc.OpenExams(ctx, stu101)
	if len(open) != 0 {
		t.Errorf("submitted exam still listed for 101")
	}
}

func TestArchiveAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	if _, err := f.svc.GetArchive(ctx, stu101, e.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("archive before close: expected NotFound, got %v", err)
	}
	if _, err := f.svc.CloseExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("CloseExam: %v", err)
	}
	if _, err := f.svc.GetArchive(ctx, stuB201, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("other cohort: expected Forbidden, got %v", err)
	}
	if _, err := f.svc.GetArchive(ctx, other, e.ID); err != nil {
		t.Errorf("faculty read: %v", err)
	}

	headers, err := f.svc.ListArchives(ctx, stu101, model.Cohort{}, "")
	if err != nil || len(headers) != 1 {
		t.Errorf("student archives = %d, %v", len(headers), err)
	}
	headers, err = f.svc.ListArchives(ctx, stuB201, cohortA, "")
	if err != nil || len(headers) != 0 {
		t.Errorf("student of B listed %d archives of A, %v", len(headers), err)
	}
	if _, err := f.svc.ListArchives(ctx, prof, model.Cohort{}, ""); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("staff without cohort: expected Validation, got %v", err)
	}
}

func TestDeleteExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	if err := f.svc.DeleteExam(ctx, prof, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("delete ACTIVE: expected Forbidden, got %v", err)
	}
	if _, err := f.svc.CloseExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("CloseExam: %v", err)
	}
	if err := f.svc.DeleteExam(ctx, other, e.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("delete by other: expected Forbidden, got %v", err)
	}
	if err := f.svc.DeleteExam(ctx, prof, e.ID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := f.svc.GetExam(ctx, prof, e.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
}

func TestImportRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cohortC := model.Cohort{Year: "Y3", Branch: "ECE"}

	tests := []struct {
		name  string
		actor model.Principal
		rows  []model.RosterRow
		kind  error
	}{
		{"faculty", prof, []model.RosterRow{{Roll: "301", Name: "X"}}, apperrors.ErrForbidden},
		{"empty", admin, nil, apperrors.ErrValidation},
		{"missing name", admin, []model.RosterRow{{Roll: "301", Name: " "}}, apperrors.ErrValidation},
		{"duplicate roll", admin, []model.RosterRow{{Roll: "301", Name: "X"}, {Roll: "301", Name: "Y"}}, apperrors.ErrValidation},
		{"roll in other cohort", admin, []model.RosterRow{{Roll: "101", Name: "X"}}, apperrors.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ImportRoster(ctx, tt.actor, cohortC, tt.rows)
			if !apperrors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	if _, err := f.svc.ImportRoster(ctx, admin, cohortA, []model.RosterRow{{Roll: "103", Name: "Z"}}); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("re-upload: expected Conflict, got %v", err)
	}
	n, err := f.svc.ImportRoster(ctx, admin, cohortC, []model.RosterRow{{Roll: " 301 ", Name: "Devi"}})
	if err != nil || n != 1 {
		t.Fatalf("ImportRoster = %d, %v", n, err)
	}
	st, err := f.store.GetStudent(ctx, "301")
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if st.Cohort.Section != model.NoSection {
		t.Errorf("section = %q, want %q", st.Cohort.Section, model.NoSection)
	}
	if _, err := f.svc.DeleteRoster(ctx, admin, model.Cohort{Year: "Y3"}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("delete without branch: expected Validation, got %v", err)
	}
}

func TestBlankCohortRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	blank := model.Cohort{Year: "   ", Branch: "  "}

	_, err := f.svc.ImportRoster(ctx, admin, blank, []model.RosterRow{{Roll: "900", Name: "Ghost"}})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("ImportRoster: expected Validation, got %v", err)
	}
	if _, err := f.store.GetStudent(ctx, "900"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("student 900 should not exist, got %v", err)
	}

	if _, err := f.svc.CreateExam(ctx, prof, NewExam{Cohort: blank, DurationMinutes: 30}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("CreateExam: expected Validation, got %v", err)
	}
	if _, err := f.svc.ListArchives(ctx, prof, blank, ""); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("ListArchives: expected Validation, got %v", err)
	}
}

func TestSweepDropsStaleAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	eb, err := f.svc.CreateExam(ctx, prof, NewExam{Cohort: cohortB, DurationMinutes: 30})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if _, err := f.svc.ImportQuestions(ctx, prof, eb.ID, sampleRows()); err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	if _, err := f.svc.ActivateExam(ctx, prof, eb.ID); err != nil {
		t.Fatalf("ActivateExam: %v", err)
	}

	if _, err := f.svc.BeginAttempt(ctx, stu101, e.ID); err != nil {
		t.Fatalf("BeginAttempt(101): %v", err)
	}
	if _, err := f.svc.BeginAttempt(ctx, stuB201, eb.ID); err != nil {
		t.Fatalf("BeginAttempt(201): %v", err)
	}

	// Close behind the service's back, leaving the attempt in memory.
	if _, err := f.store.CloseExam(ctx, e.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("store.CloseExam: %v", err)
	}
	if got := f.svc.attempts.len(); got != 2 {
		t.Fatalf("attempts before sweep = %d, want 2", got)
	}

	if n, err := f.svc.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if got := f.svc.attempts.len(); got != 1 {
		t.Errorf("attempts after sweep = %d, want 1", got)
	}
}

func TestStudentAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ListStudents(ctx, prof, model.Cohort{}); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("faculty list: expected Forbidden, got %v", err)
	}
	all, err := f.svc.ListStudents(ctx, admin, model.Cohort{Year: " Y2 ", Section: "all"})
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d students, want 3", len(all))
	}

	tests := []struct {
		name  string
		actor model.Principal
		roll  string
		in    model.StudentUpdate
		kind  error
	}{
		{"faculty", prof, "101", model.StudentUpdate{Name: "X", Cohort: cohortA}, apperrors.ErrForbidden},
		{"blank name", admin, "101", model.StudentUpdate{Name: "  ", Cohort: cohortA}, apperrors.ErrValidation},
		{"blank cohort", admin, "101", model.StudentUpdate{Name: "X", Cohort: model.Cohort{Year: " ", Branch: "CS"}}, apperrors.ErrValidation},
		{"unknown roll", admin, "999", model.StudentUpdate{Name: "X", Cohort: cohortA}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateStudent(ctx, tt.actor, tt.roll, tt.in)
			if !apperrors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	st, err := f.svc.UpdateStudent(ctx, admin, "102", model.StudentUpdate{Name: " Bala K ", Parent: "9000", Cohort: cohortB})
	if err != nil {
		t.Fatalf("UpdateStudent: %v", err)
	}
	if st.Name != "Bala K" || st.Cohort != cohortB {
		t.Errorf("updated student = %+v", st)
	}

	e := f.activeExam(t)
	if _, err := f.svc.BeginAttempt(ctx, stu101, e.ID); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if err := f.svc.DeleteStudent(ctx, prof, "101"); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("faculty delete: expected Forbidden, got %v", err)
	}
	if err := f.svc.DeleteStudent(ctx, admin, "101"); err != nil {
		t.Fatalf("DeleteStudent: %v", err)
	}
	if got := f.svc.attempts.len(); got != 0 {
		t.Errorf("attempts after delete = %d, want 0", got)
	}
	if _, err := f.store.GetStudent(ctx, "101"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetStudent after delete: expected NotFound, got %v", err)
	}
}

func TestAttendanceReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeExam(t)

	view, err := f.svc.BeginAttempt(ctx, stu101, e.ID)
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, stu101, e.ID, correctAnswers(view)); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	rows, err := f.svc.AttendanceReport(ctx, prof, model.LedgerFilter{Year: "Y2", Branch: "CS", Section: "all"})
	if err != nil {
		t.Fatalf("AttendanceReport: %v", err)
	}
	if len(rows) != 1 || rows[0].Roll != "101" || rows[0].Score == nil || *rows[0].Score != 2 {
		t.Errorf("owner report = %+v", rows)
	}

	rows, err = f.svc.AttendanceReport(ctx, other, model.LedgerFilter{})
	if err != nil {
		t.Fatalf("AttendanceReport: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("other faculty sees %d rows, want 0", len(rows))
	}
	if _, err := f.svc.AttendanceReport(ctx, stu101, model.LedgerFilter{}); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("student: expected Forbidden, got %v", err)
	}
}
