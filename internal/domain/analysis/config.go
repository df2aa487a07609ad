// Package analysis содержит аналитическое ядро движка: динамику
// посещаемости, классификацию риска и итоговый отчёт по студенту.
// Все пороги собраны в конфигурации — никаких магических чисел
// в вычислительном коде.
package analysis

import "github.com/edupulse/attendance-insight/internal/domain/shared"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// RiskBands задаёт границы уровней риска по проценту посещаемости.
// Границы сравниваются строго снизу: percentage < CriticalBelow — critical,
// иначе < HighBelow — high, иначе < MediumBelow — medium, иначе low.
// Нижняя граница каждой полосы включительна.
type RiskBands struct {
	CriticalBelow float64
	HighBelow     float64
	MediumBelow   float64
}

// TrendConfig задаёт параметры анализа динамики.
type TrendConfig struct {
	// WindowDays - размер сравниваемых окон в точках дневного ряда.
	WindowDays int

	// Deadband - мёртвая зона в процентных пунктах: изменение в пределах
	// ±Deadband считается шумом, а не трендом.
	Deadband float64
}

// RuleThresholds задаёт пороги правил генератора действий.
type RuleThresholds struct {
	// WarningBelowPercent - ниже этого процента выписывается академическое
	// предупреждение и организуется контакт с родителями.
	WarningBelowPercent float64

	// CheckinBelowPercent - процент в полосе [WarningBelowPercent,
	// CheckinBelowPercent) приводит к профилактической встрече со студентом.
	CheckinBelowPercent float64

	// AbsenceAlertCount - строго больше этого числа пропусков
	// направление к школьному консультанту.
	AbsenceAlertCount int

	// LateAlertCount - строго больше этого числа опозданий включается
	// наблюдение за посещаемостью.
	LateAlertCount int

	// LateEscalationCount - строго больше этого числа опозданий наблюдение
	// получает высокий приоритет вместо среднего.
	LateEscalationCount int

	// Сроки исполнения действий в днях от момента генерации.
	WarningDueDays      int
	ContactDueDays      int
	CheckinDueDays      int
	CounselingDueDays   int
	MonitoringDueDays   int
	InterventionDueDays int
}

// Config объединяет все пороги аналитического ядра.
type Config struct {
	Bands RiskBands
	Trend TrendConfig
	Rules RuleThresholds
}

// DefaultConfig возвращает пороги по умолчанию.
func DefaultConfig() Config {
	return Config{
		Bands: RiskBands{
			CriticalBelow: 60.0,
			HighBelow:     75.0,
			MediumBelow:   85.0,
		},
		Trend: TrendConfig{
			WindowDays: 7,
			Deadband:   2.0,
		},
		Rules: RuleThresholds{
			WarningBelowPercent: 75.0,
			CheckinBelowPercent: 85.0,
			AbsenceAlertCount:   5,
			LateAlertCount:      3,
			LateEscalationCount: 6,
			WarningDueDays:      3,
			ContactDueDays:      2,
			CheckinDueDays:      5,
			CounselingDueDays:   7,
			MonitoringDueDays:   5,
			InterventionDueDays: 4,
		},
	}
}

// Validate проверяет согласованность порогов.
func (c Config) Validate() error {
	if c.Bands.CriticalBelow <= 0 ||
		c.Bands.CriticalBelow >= c.Bands.HighBelow ||
		c.Bands.HighBelow >= c.Bands.MediumBelow ||
		c.Bands.MediumBelow > 100 {
		return shared.ErrInvalidRiskBands
	}
	if c.Trend.WindowDays < 1 {
		return shared.ErrInvalidWindow
	}
	if c.Trend.Deadband < 0 {
		return shared.ErrNegativeDeadband
	}
	if c.Rules.WarningBelowPercent <= 0 || c.Rules.CheckinBelowPercent <= c.Rules.WarningBelowPercent {
		return shared.NewDomainError("analysis", "Validate", shared.ErrValueOutOfRange,
			"rule thresholds must satisfy 0 < warning < checkin")
	}
	if c.Rules.AbsenceAlertCount < 0 || c.Rules.LateAlertCount < 0 || c.Rules.LateEscalationCount < c.Rules.LateAlertCount {
		return shared.NewDomainError("analysis", "Validate", shared.ErrValueOutOfRange,
			"rule counters must be non-negative and escalation above alert")
	}
	for _, days := range []int{
		c.Rules.WarningDueDays, c.Rules.ContactDueDays, c.Rules.CheckinDueDays,
		c.Rules.CounselingDueDays, c.Rules.MonitoringDueDays, c.Rules.InterventionDueDays,
	} {
		if days < 1 {
			return shared.NewDomainError("analysis", "Validate", shared.ErrValueOutOfRange,
				"due offsets must be at least one day")
		}
	}
	return nil
}
