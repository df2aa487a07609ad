// Package attendance содержит доменную модель посещаемости: сырые записи
// занятий, канонические своды по предметам и агрегированную статистику
// одного студента. Пакет — чистое вычислительное ядро: никакого I/O,
// только детерминированные функции над уже загруженными данными.
package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет статус посещения одного занятия.
// Ровно четыре допустимых значения; всё остальное — ошибка данных,
// которая всплывает наружу, а не коэрцируется в значение по умолчанию.
type Status string

const (
	// StatusPresent - студент присутствовал на занятии.
	StatusPresent Status = "present"

	// StatusAbsent - студент отсутствовал без уважительной причины.
	StatusAbsent Status = "absent"

	// StatusLate - студент опоздал. Засчитывается как посещение при расчёте
	// процента, но учитывается отдельно для правил вмешательства.
	StatusLate Status = "late"

	// StatusExcused - отсутствие по уважительной причине. Полностью
	// исключается из знаменателя: не помогает и не вредит проценту.
	StatusExcused Status = "excused"
)

// IsValid проверяет, что статус — одно из четырёх допустимых значений.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	default:
		return false
	}
}

// CountsAsAttended возвращает true, если статус засчитывается как посещение.
func (s Status) CountsAsAttended() bool {
	return s == StatusPresent || s == StatusLate
}

// CountsTowardRate возвращает true, если занятие входит в знаменатель
// при расчёте процента посещаемости.
func (s Status) CountsTowardRate() bool {
	return s != StatusExcused
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает строку статуса из внешнего источника.
// Допускает лишние пробелы и любой регистр; неизвестное значение —
// ошибка shared.ErrUnknownStatus, никогда не подмена дефолтом.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.NewDomainError("attendance", "ParseStatus", shared.ErrUnknownStatus,
			fmt.Sprintf("unrecognized attendance status %q", raw))
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RAW RECORD
// ══════════════════════════════════════════════════════════════════════════════

// RawRecord — одна запись о посещении: студент, предмет, дата, статус.
// Инвариант источника данных: не более одной записи на тройку
// (студент, предмет, дата). Нарушение ловит нормализатор.
type RawRecord struct {
	StudentID   string    `json:"student_id"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	SubjectCode string    `json:"subject_code"`
	Date        time.Time `json:"date"`
	Status      Status    `json:"status"`
}

// Validate проверяет запись на границе движка.
func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return shared.ErrEmptyStudentID
	}
	if strings.TrimSpace(r.SubjectID) == "" {
		return shared.ErrEmptySubjectID
	}
	if r.Date.IsZero() {
		return shared.ErrZeroRecordDate
	}
	if !r.Status.IsValid() {
		return shared.ErrRecordUnknownStatus
	}
	return nil
}

// DayKey возвращает дату записи в формате YYYY-MM-DD (UTC).
// Используется для дедупликации и построения дневного ряда.
func (r RawRecord) DayKey() string {
	return r.Date.UTC().Format("2006-01-02")
}

// String возвращает строковое представление для логирования.
func (r RawRecord) String() string {
	return fmt.Sprintf("RawRecord{Student: %s, Subject: %s, Date: %s, Status: %s}",
		r.StudentID, r.SubjectID, r.DayKey(), r.Status)
}
