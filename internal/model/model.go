package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a principal's access level.
type UserRole string

const (
	// UserRoleStudent is a student sitting exams.
	UserRoleStudent UserRole = "student"
	// UserRoleFaculty is a faculty member who owns exams.
	UserRoleFaculty UserRole = "faculty"
	// UserRoleAdmin is an administrator.
	UserRoleAdmin UserRole = "admin"
)

// User represents a staff account (faculty or admin).
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Subject string   // username for staff, roll number for students
	Role    UserRole
	TokenID string
}

// IsAdmin reports whether the principal is an administrator.
func (p Principal) IsAdmin() bool { return p.Role == UserRoleAdmin }

// SystemPrincipal is the actor used by background jobs.
var SystemPrincipal = Principal{Subject: "system", Role: UserRoleAdmin}

type principalCtxKey struct{}

// ContextWithPrincipal stores the authenticated principal in the request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

// NoSection is the section value for branches that are not split into sections.
const NoSection = "na"

// Cohort identifies a roster partition.
type Cohort struct {
	Year    string `json:"year" validate:"required"`
	Branch  string `json:"branch" validate:"required"`
	Section string `json:"section"`
}

// Normalize trims the cohort fields and substitutes NoSection for an empty section.
func (c Cohort) Normalize() Cohort {
	c.Year = strings.TrimSpace(c.Year)
	c.Branch = strings.TrimSpace(c.Branch)
	c.Section = strings.TrimSpace(c.Section)
	if c.Section == "" {
		c.Section = NoSection
	}
	return c
}

func (c Cohort) String() string {
	return c.Year + "/" + c.Branch + "/" + c.Section
}

// Student is a roster member.
type Student struct {
	Roll         string `json:"roll"`
	Name         string `json:"name"`
	Parent       string `json:"parent"`
	Cohort       Cohort `json:"cohort"`
	PasswordHash string `json:"-"`
}

// StudentUpdate replaces a roster member's details.
type StudentUpdate struct {
	Name   string `json:"name" validate:"required"`
	Parent string `json:"parent"`
	Cohort Cohort `json:"cohort"`
}

// ExamStatus is the lifecycle state of an exam.
type ExamStatus string

const (
	ExamDraft  ExamStatus = "DRAFT"
	ExamActive ExamStatus = "ACTIVE"
	ExamClosed ExamStatus = "CLOSED"
)

// Exam is a timed examination for one cohort.
type Exam struct {
	ID              int64      `json:"id"`
	Owner           string     `json:"owner"`
	Cohort          Cohort     `json:"cohort"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	ExamDate        string     `json:"exam_date"`
	CreatedAt       time.Time  `json:"created_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Deadline returns the instant the exam expires, or the zero time if it never started.
func (e Exam) Deadline() time.Time {
	if e.StartTime == nil {
		return time.Time{}
	}
	return e.StartTime.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Remaining returns the time left before the deadline, never negative.
func (e Exam) Remaining(now time.Time) time.Duration {
	d := e.Deadline()
	if d.IsZero() || !now.Before(d) {
		return 0
	}
	return d.Sub(now)
}

// ExamSummary adds the roster size to an exam for dashboards.
type ExamSummary struct {
	Exam
	StudentCount  int `json:"student_count"`
	QuestionCount int `json:"question_count"`
}

// Question is a live multiple-choice question.
type Question struct {
	ID         int64  `json:"id"`
	ExamID     int64  `json:"exam_id"`
	Prompt     string `json:"prompt"`
	OptionA    string `json:"a"`
	OptionB    string `json:"b"`
	OptionC    string `json:"c"`
	OptionD    string `json:"d"`
	CorrectKey string `json:"correct,omitempty"`
}

// Option returns the text of the option with the given letter (a-d, any case).
func (q Question) Option(letter string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(letter)) {
	case "a":
		return q.OptionA, true
	case "b":
		return q.OptionB, true
	case "c":
		return q.OptionC, true
	case "d":
		return q.OptionD, true
	}
	return "", false
}

// QuestionRow is one imported question tuple.
type QuestionRow struct {
	Prompt  string `json:"question" validate:"required"`
	A       string `json:"a" validate:"required"`
	B       string `json:"b" validate:"required"`
	C       string `json:"c" validate:"required"`
	D       string `json:"d" validate:"required"`
	Correct string `json:"correct" validate:"required"`
}

// RosterRow is one imported roster tuple.
type RosterRow struct {
	Roll   string `json:"roll" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Parent string `json:"parent"`
}

// Result is a student's stored score for an exam.
type Result struct {
	Roll        string    `json:"roll"`
	ExamID      int64     `json:"exam_id"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AttendanceStatus marks whether a student sat an exam.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
)

// Attendance records that a student sat an exam.
type Attendance struct {
	ExamID int64            `json:"exam_id"`
	Roll   string           `json:"roll"`
	Status AttendanceStatus `json:"status"`
}

// ArchivedQuestion is one row of a question archive.
type ArchivedQuestion struct {
	Position   int    `json:"position"`
	Prompt     string `json:"question"`
	OptionA    string `json:"a"`
	OptionB    string `json:"b"`
	OptionC    string `json:"c"`
	OptionD    string `json:"d"`
	CorrectKey string `json:"correct"`
}

// ArchiveHeader describes a question archive without its rows.
type ArchiveHeader struct {
	ExamID     int64     `json:"exam_id"`
	Cohort     Cohort    `json:"cohort"`
	ExamDate   string    `json:"exam_date"`
	ArchivedAt time.Time `json:"archived_at"`
}

// QuestionArchive is the immutable snapshot of a closed exam's questions.
type QuestionArchive struct {
	ArchiveHeader
	Questions []ArchivedQuestion `json:"questions"`
}

// PresentedQuestion is a question as shown to a student, without its key.
type PresentedQuestion struct {
	ID      int64  `json:"id"`
	Prompt  string `json:"prompt"`
	OptionA string `json:"a"`
	OptionB string `json:"b"`
	OptionC string `json:"c"`
	OptionD string `json:"d"`
}

// AttemptView is what a student receives when opening an exam.
type AttemptView struct {
	AttemptID        string              `json:"attempt_id"`
	ExamID           int64               `json:"exam_id"`
	Questions        []PresentedQuestion `json:"questions"`
	Deadline         time.Time           `json:"deadline"`
	RemainingSeconds int64               `json:"remaining_seconds"`
}

// Submission is the outcome of a submitted attempt.
type Submission struct {
	Roll            string    `json:"roll"`
	ExamID          int64     `json:"exam_id"`
	Score           int       `json:"score"`
	QuestionCount   int       `json:"question_count"`
	SubmittedAt     time.Time `json:"submitted_at"`
	AlreadyRecorded bool      `json:"already_recorded"`
}

// LedgerFilter narrows a results query. Empty fields do not filter.
type LedgerFilter struct {
	Year     string
	Branch   string
	Section  string
	ExamDate string
	ExamID   int64
	Owner    string
}

// LedgerRow is one line of the results report.
type LedgerRow struct {
	Roll        string           `json:"roll"`
	Name        string           `json:"name"`
	Cohort      Cohort           `json:"cohort"`
	ExamID      int64            `json:"exam_id"`
	ExamDate    string           `json:"exam_date"`
	Owner       string           `json:"owner"`
	Score       int              `json:"score"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Attendance  AttendanceStatus `json:"attendance"`
}

// AttendanceRow is one roster member's attendance for an exam.
type AttendanceRow struct {
	Roll   string           `json:"roll"`
	Name   string           `json:"name"`
	Status AttendanceStatus `json:"status"`
	Score  *int             `json:"score,omitempty"`
}

// AttendanceReportRow is one PRESENT mark of the cross-exam attendance report.
type AttendanceReportRow struct {
	Roll     string           `json:"roll"`
	Name     string           `json:"name"`
	Cohort   Cohort           `json:"cohort"`
	ExamID   int64            `json:"exam_id"`
	ExamDate string           `json:"exam_date"`
	Score    *int             `json:"score,omitempty"`
	Status   AttendanceStatus `json:"status"`
}

// MonitorStatus is a student's live state during an exam.
type MonitorStatus string

const (
	MonitorWriting   MonitorStatus = "WRITING"
	MonitorSubmitted MonitorStatus = "SUBMITTED"
)

// MonitorRow is one student line of the exam monitor.
type MonitorRow struct {
	Roll   string        `json:"roll"`
	Name   string        `json:"name"`
	Status MonitorStatus `json:"status"`
	Score  *int          `json:"score,omitempty"`
}

// MonitorView summarises submission progress for an exam.
type MonitorView struct {
	Exam      Exam         `json:"exam"`
	Total     int          `json:"total"`
	Submitted int          `json:"submitted"`
	Writing   int          `json:"writing"`
	Students  []MonitorRow `json:"students"`
}

// ResultEvent is published after a submission commits.
type ResultEvent struct {
	Roll   string
	Name   string
	Parent string
	Cohort Cohort
	ExamID int64
	Score  int
	Total  int
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	SweepInterval time.Duration // how often the auto-closer runs
	TokenTTL      time.Duration
	JWTSecret     string
	Lang          string // notification language (en, te)
	CountryCode   string // prefix for parent phone numbers without one
	SMSGatewayURL string // empty means log-only notifications
	NotifyQueue   int
}
