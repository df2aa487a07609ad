package action

import (
	"fmt"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATOR
// Генератор переводит статистику и тренд в конкретные действия куратора
// по фиксированной таблице правил. Правила детерминированы: одинаковый
// вход даёт одинаковый набор действий в одинаковом порядке; свежи только
// идентификаторы и отметки времени.
// ══════════════════════════════════════════════════════════════════════════════

// Generator порождает действия по статистике посещаемости студента.
type Generator struct {
	rules analysis.RuleThresholds
}

// NewGenerator создаёт генератор с заданными порогами правил.
func NewGenerator(rules analysis.RuleThresholds) *Generator {
	return &Generator{rules: rules}
}

// Generate применяет таблицу правил и возвращает действия в порядке
// объявления правил. Правила независимы: студент с плохой посещаемостью,
// пропусками и опозданиями получит все применимые действия сразу.
func (g *Generator) Generate(
	studentID string,
	overall attendance.OverallAttendance,
	trend analysis.TrendSignal,
	now time.Time,
) ([]*ActionItem, error) {
	now = now.UTC()
	items := make([]*ActionItem, 0, 4)

	appendItem := func(t Type, priority Priority, dueDays int, title, description string) error {
		item, err := NewActionItem(NewActionItemParams{
			ID:            NewAutoID(),
			StudentID:     studentID,
			Type:          t,
			Title:         title,
			Description:   description,
			Priority:      priority,
			DueDate:       now.AddDate(0, 0, dueDays),
			AutoGenerated: true,
		})
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Правило 1: посещаемость ниже порога предупреждения.
	// Два действия сразу: официальное предупреждение и контакт с родителями.
	// ─────────────────────────────────────────────────────────────────────────
	if overall.Percentage < g.rules.WarningBelowPercent {
		if err := appendItem(TypeAcademicWarning, PriorityCritical, g.rules.WarningDueDays,
			"Issue academic warning",
			fmt.Sprintf("Attendance is %.2f%%, below the %.0f%% minimum. A formal academic warning is required.",
				overall.Percentage, g.rules.WarningBelowPercent),
		); err != nil {
			return nil, err
		}
		if err := appendItem(TypeContactParent, PriorityHigh, g.rules.ContactDueDays,
			"Contact parents or guardians",
			fmt.Sprintf("Attendance is %.2f%% with %d unexcused absences. Parents need to be informed about the situation.",
				overall.Percentage, overall.AbsentClasses),
		); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Правило 2: посещаемость в предупредительной полосе.
	// ─────────────────────────────────────────────────────────────────────────
	if overall.Percentage >= g.rules.WarningBelowPercent && overall.Percentage < g.rules.CheckinBelowPercent {
		if err := appendItem(TypeContactStudent, PriorityMedium, g.rules.CheckinDueDays,
			"Schedule a check-in with the student",
			fmt.Sprintf("Attendance is %.2f%%, approaching the %.0f%% warning threshold. An early conversation can prevent escalation.",
				overall.Percentage, g.rules.WarningBelowPercent),
		); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Правило 3: пропусков больше допустимого.
	// ─────────────────────────────────────────────────────────────────────────
	if overall.AbsentClasses > g.rules.AbsenceAlertCount {
		if err := appendItem(TypeCounseling, PriorityMedium, g.rules.CounselingDueDays,
			"Refer to school counselor",
			fmt.Sprintf("%d unexcused absences on record, above the alert level of %d. A counseling referral is required.",
				overall.AbsentClasses, g.rules.AbsenceAlertCount),
		); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Правило 4: опозданий больше допустимого. Приоритет растёт вместе
	// с числом опозданий.
	// ─────────────────────────────────────────────────────────────────────────
	if overall.LateClasses > g.rules.LateAlertCount {
		priority := PriorityMedium
		if overall.LateClasses > g.rules.LateEscalationCount {
			priority = PriorityHigh
		}
		if err := appendItem(TypeMonitoring, priority, g.rules.MonitoringDueDays,
			"Start attendance monitoring",
			fmt.Sprintf("%d late arrivals on record, above the alert level of %d. Daily monitoring for the coming weeks.",
				overall.LateClasses, g.rules.LateAlertCount),
		); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Правило 5: ухудшающийся тренд.
	// ─────────────────────────────────────────────────────────────────────────
	if trend.Declining && trend.HasData() {
		if err := appendItem(TypeIntervention, PriorityHigh, g.rules.InterventionDueDays,
			"Create an intervention plan",
			fmt.Sprintf("Average attendance fell from %.2f%% to %.2f%% between the last two windows. A structured intervention plan is needed.",
				*trend.PreviousAverage, *trend.RecentAverage),
		); err != nil {
			return nil, err
		}
	}

	return items, nil
}
