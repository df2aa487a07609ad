package attendance

import (
	"fmt"
	"math"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT TALLY
// ══════════════════════════════════════════════════════════════════════════════

// SubjectTally — канонический свод посещаемости по одному предмету.
// Инвариант: Present + Late + Absent + Excused == Total.
// Свод всегда пересчитывается из сырых записей и никогда не хранится.
type SubjectTally struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SubjectCode string `json:"subject_code"`
	Total       int    `json:"total"`
	Present     int    `json:"present"`
	Absent      int    `json:"absent"`
	Late        int    `json:"late"`
	Excused     int    `json:"excused"`
}

// AttendedCount возвращает число посещённых занятий: present + late.
func (t SubjectTally) AttendedCount() int {
	return t.Present + t.Late
}

// CountableClasses возвращает знаменатель процента: total - excused.
func (t SubjectTally) CountableClasses() int {
	return t.Total - t.Excused
}

// Percentage возвращает процент посещаемости по предмету,
// округлённый до двух знаков. Если все занятия excused — 0.
func (t SubjectTally) Percentage() float64 {
	return attendancePercentage(t.AttendedCount(), t.CountableClasses())
}

// Validate проверяет внутреннюю целостность свода. Расхождение сумм —
// признак ошибки конвейера данных и всплывает как integrity violation,
// а не затирается молча.
func (t SubjectTally) Validate() error {
	if t.Present < 0 || t.Absent < 0 || t.Late < 0 || t.Excused < 0 || t.Total < 0 {
		return shared.NewDomainError("attendance", "SubjectTally.Validate", shared.ErrNegativeValue,
			fmt.Sprintf("subject %s has negative counts", t.SubjectID))
	}
	if sum := t.Present + t.Absent + t.Late + t.Excused; sum != t.Total {
		return shared.NewDomainError("attendance", "SubjectTally.Validate", shared.ErrTallyMismatch,
			fmt.Sprintf("subject %s: statuses sum to %d, total is %d", t.SubjectID, sum, t.Total))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERALL ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// OverallAttendance — агрегированная статистика студента по всем предметам.
// Percentage считается по формуле attended / max(total - excused, 1) * 100,
// округление до двух знаков. Без записей процент равен 0, не 100:
// отсутствие данных — не доказательство идеальной посещаемости.
type OverallAttendance struct {
	TotalClasses    int     `json:"total_classes"`
	AttendedClasses int     `json:"attended_classes"`
	AbsentClasses   int     `json:"absent_classes"`
	LateClasses     int     `json:"late_classes"`
	ExcusedClasses  int     `json:"excused_classes"`
	Percentage      float64 `json:"percentage"`
}

// IsEmpty возвращает true, если у студента нет ни одной записи.
func (o OverallAttendance) IsEmpty() bool {
	return o.TotalClasses == 0
}

// String возвращает краткое представление для логирования.
func (o OverallAttendance) String() string {
	return fmt.Sprintf("OverallAttendance{Total: %d, Attended: %d, Percentage: %.2f}",
		o.TotalClasses, o.AttendedClasses, o.Percentage)
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator складывает своды по предметам в общую статистику студента.
// Перед суммированием каждый свод проходит проверку целостности.
type Aggregator struct{}

// NewAggregator создаёт агрегатор.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate суммирует своды и вычисляет общий процент посещаемости.
// Пустой вход — валидный случай: возвращается нулевая статистика.
func (a *Aggregator) Aggregate(tallies []SubjectTally) (OverallAttendance, error) {
	overall := OverallAttendance{}

	for _, tally := range tallies {
		if err := tally.Validate(); err != nil {
			return OverallAttendance{}, err
		}

		overall.TotalClasses += tally.Total
		overall.AttendedClasses += tally.AttendedCount()
		overall.AbsentClasses += tally.Absent
		overall.LateClasses += tally.Late
		overall.ExcusedClasses += tally.Excused
	}

	countable := overall.TotalClasses - overall.ExcusedClasses
	overall.Percentage = attendancePercentage(overall.AttendedClasses, countable)

	return overall, nil
}

// attendancePercentage вычисляет attended / max(countable, 1) * 100
// с округлением до двух знаков. Явная защита от деления на ноль:
// студент без учитываемых занятий получает 0.
func attendancePercentage(attended, countable int) float64 {
	if countable < 1 {
		countable = 1
	}
	return round2(float64(attended) / float64(countable) * 100)
}

// round2 округляет до двух знаков после запятой.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
