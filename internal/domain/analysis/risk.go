package analysis

import (
	"strings"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RISK LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// RiskLevel определяет уровень риска студента по посещаемости.
type RiskLevel string

const (
	// RiskLow - посещаемость в норме, вмешательство не требуется.
	RiskLow RiskLevel = "low"

	// RiskMedium - заметное проседание, стоит присмотреться.
	RiskMedium RiskLevel = "medium"

	// RiskHigh - ниже допустимого порога, требуется вмешательство.
	RiskHigh RiskLevel = "high"

	// RiskCritical - критический уровень, немедленное вмешательство.
	RiskCritical RiskLevel = "critical"
)

// IsValid проверяет, что уровень — одно из четырёх допустимых значений.
func (l RiskLevel) IsValid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// Severity возвращает числовой вес уровня для сортировки и сравнения:
// low=0, medium=1, high=2, critical=3.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast возвращает true, если уровень не ниже указанного.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Severity() >= other.Severity()
}

// String возвращает строковое представление уровня.
func (l RiskLevel) String() string {
	return string(l)
}

// ParseRiskLevel разбирает строку уровня риска из внешнего источника.
func ParseRiskLevel(raw string) (RiskLevel, error) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
	if !l.IsValid() {
		return "", shared.ErrInvalidRiskLevel
	}
	return l, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Classifier отображает процент посещаемости на уровень риска.
// Чистая функция от статистики и порогов: одинаковый вход всегда
// даёт одинаковый уровень.
type Classifier struct {
	bands RiskBands
}

// NewClassifier создаёт классификатор с заданными границами полос.
func NewClassifier(bands RiskBands) *Classifier {
	return &Classifier{bands: bands}
}

// Classify возвращает уровень риска для агрегированной статистики.
// Границы полос: percentage < CriticalBelow - critical, иначе
// < HighBelow - high, иначе < MediumBelow - medium, иначе low.
// Нижняя граница включительна: ровно 60% при пороге 60 — это high.
// Студент без записей получает 0% и, соответственно, critical.
func (c *Classifier) Classify(overall attendance.OverallAttendance) RiskLevel {
	switch {
	case overall.Percentage < c.bands.CriticalBelow:
		return RiskCritical
	case overall.Percentage < c.bands.HighBelow:
		return RiskHigh
	case overall.Percentage < c.bands.MediumBelow:
		return RiskMedium
	default:
		return RiskLow
	}
}
