package analysis

import (
	"fmt"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPORT
// ══════════════════════════════════════════════════════════════════════════════

// StudentReport — полный аналитический отчёт по студенту: своды по
// предметам, агрегированная статистика, тренд и уровень риска.
// Отчёт всегда вычисляется заново из сырых записей; в Postgres
// сохраняются только снапшоты-срезы для истории и скана когорты.
type StudentReport struct {
	StudentID   string                       `json:"student_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Tallies     []attendance.SubjectTally    `json:"tallies"`
	Overall     attendance.OverallAttendance `json:"overall"`
	Trend       TrendSignal                  `json:"trend"`
	Risk        RiskLevel                    `json:"risk"`
}

// NeedsAttention возвращает true, если студент требует внимания:
// риск high и выше либо ухудшающийся тренд.
func (r *StudentReport) NeedsAttention() bool {
	return r.Risk.AtLeast(RiskHigh) || r.Trend.Declining
}

// WorstSubject возвращает предмет с минимальным процентом посещаемости.
// При равенстве берётся первый в каноническом порядке. Для пустого
// отчёта возвращается nil.
func (r *StudentReport) WorstSubject() *attendance.SubjectTally {
	if len(r.Tallies) == 0 {
		return nil
	}
	worst := 0
	for i := 1; i < len(r.Tallies); i++ {
		if r.Tallies[i].Percentage() < r.Tallies[worst].Percentage() {
			worst = i
		}
	}
	tally := r.Tallies[worst]
	return &tally
}

// ══════════════════════════════════════════════════════════════════════════════
// RISK SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// RiskSnapshot — сохранённый срез отчёта на момент времени.
// Используется для истории риска, дашборда когорты и алертов.
type RiskSnapshot struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	Percentage      float64   `json:"percentage"`
	RiskLevel       RiskLevel `json:"risk_level"`
	TotalClasses    int       `json:"total_classes"`
	AttendedClasses int       `json:"attended_classes"`
	AbsentClasses   int       `json:"absent_classes"`
	LateClasses     int       `json:"late_classes"`
	ExcusedClasses  int       `json:"excused_classes"`
	TrendDirection  string    `json:"trend_direction"`
	TrendChange     float64   `json:"trend_change"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// NewRiskSnapshot создаёт снапшот из отчёта. ID назначает вызывающий слой.
func NewRiskSnapshot(id string, report *StudentReport) *RiskSnapshot {
	return &RiskSnapshot{
		ID:              id,
		StudentID:       report.StudentID,
		Percentage:      report.Overall.Percentage,
		RiskLevel:       report.Risk,
		TotalClasses:    report.Overall.TotalClasses,
		AttendedClasses: report.Overall.AttendedClasses,
		AbsentClasses:   report.Overall.AbsentClasses,
		LateClasses:     report.Overall.LateClasses,
		ExcusedClasses:  report.Overall.ExcusedClasses,
		TrendDirection:  report.Trend.Direction(),
		TrendChange:     report.Trend.Change,
		GeneratedAt:     report.GeneratedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCAN RUN
// ══════════════════════════════════════════════════════════════════════════════

// RunStatus определяет статус прогона фонового скана когорты.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsValid проверяет корректность статуса прогона.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunRunning, RunCompleted, RunFailed:
		return true
	default:
		return false
	}
}

// IsFinal возвращает true для завершённых статусов.
func (s RunStatus) IsFinal() bool {
	return s == RunCompleted || s == RunFailed
}

// String возвращает строковое представление статуса.
func (s RunStatus) String() string {
	return string(s)
}

// ScanRun — один прогон фонового скана когорты: сколько студентов
// просканировано и как распределились уровни риска.
type ScanRun struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	Status          RunStatus  `json:"status"`
	StudentsScanned int        `json:"students_scanned"`
	FailedStudents  int        `json:"failed_students"`
	CriticalCount   int        `json:"critical_count"`
	HighCount       int        `json:"high_count"`
	MediumCount     int        `json:"medium_count"`
	LowCount        int        `json:"low_count"`
	Error           string     `json:"error,omitempty"`
}

// NewScanRun создаёт прогон в статусе running. ID назначает вызывающий слой.
func NewScanRun(id string) *ScanRun {
	return &ScanRun{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
}

// Record учитывает один просканированный отчёт в счётчиках прогона.
func (r *ScanRun) Record(level RiskLevel) {
	r.StudentsScanned++
	switch level {
	case RiskCritical:
		r.CriticalCount++
	case RiskHigh:
		r.HighCount++
	case RiskMedium:
		r.MediumCount++
	case RiskLow:
		r.LowCount++
	}
}

// RecordFailure учитывает студента, анализ которого не удался.
func (r *ScanRun) RecordFailure() {
	r.FailedStudents++
}

// MarkCompleted переводит прогон в статус completed.
func (r *ScanRun) MarkCompleted() error {
	if r.Status.IsFinal() {
		return shared.NewDomainError("snapshot", "MarkCompleted", shared.ErrStateTransition,
			fmt.Sprintf("scan run %s is already %s", r.ID, r.Status))
	}
	now := time.Now().UTC()
	r.Status = RunCompleted
	r.FinishedAt = &now
	return nil
}

// MarkFailed переводит прогон в статус failed с текстом ошибки.
func (r *ScanRun) MarkFailed(cause error) error {
	if r.Status.IsFinal() {
		return shared.NewDomainError("snapshot", "MarkFailed", shared.ErrStateTransition,
			fmt.Sprintf("scan run %s is already %s", r.ID, r.Status))
	}
	now := time.Now().UTC()
	r.Status = RunFailed
	r.FinishedAt = &now
	if cause != nil {
		r.Error = cause.Error()
	}
	return nil
}

// Duration возвращает длительность прогона; для незавершённого — время
// с момента старта.
func (r *ScanRun) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RISK ALERT
// ══════════════════════════════════════════════════════════════════════════════

// RiskAlert — запись о критическом уровне риска, требующая внимания
// кураторов. Создаётся обработчиком событий, читается дашбордом.
type RiskAlert struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"student_id"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	Percentage     float64    `json:"percentage"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// NewRiskAlert создаёт алерт. ID назначает вызывающий слой.
func NewRiskAlert(id, studentID string, level RiskLevel, percentage float64, message string) *RiskAlert {
	return &RiskAlert{
		ID:         id,
		StudentID:  studentID,
		RiskLevel:  level,
		Percentage: percentage,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
}

// Acknowledge отмечает алерт как обработанный. Повторный вызов — no-op.
func (a *RiskAlert) Acknowledge() {
	if a.Acknowledged {
		return
	}
	now := time.Now().UTC()
	a.Acknowledged = true
	a.AcknowledgedAt = &now
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// CohortSummary — распределение рисков по когорте на основе последних
// снапшотов каждого студента. Кешируется целиком.
type CohortSummary struct {
	TotalStudents int               `json:"total_students"`
	Counts        map[RiskLevel]int `json:"counts"`
	Entries       []*RiskSnapshot   `json:"entries"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// AtRiskCount возвращает число студентов с риском high или critical.
func (s *CohortSummary) AtRiskCount() int {
	return s.Counts[RiskHigh] + s.Counts[RiskCritical]
}
