// Package action содержит доменную модель вмешательств: элементы действий,
// генератор рекомендаций по правилам и журнал сессии. Действие — это
// конкретный шаг куратора (связаться с родителями, направить к консультанту),
// порождённый либо движком, либо вручную.
package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION ID
// ══════════════════════════════════════════════════════════════════════════════

// ActionID представляет уникальный идентификатор действия.
// Автоматически сгенерированные и ручные действия различимы по префиксу.
type ActionID string

const (
	autoIDPrefix   = "auto-"
	manualIDPrefix = "man-"
)

// NewAutoID создаёт ID для действия, порождённого движком.
func NewAutoID() ActionID {
	return ActionID(autoIDPrefix + uuid.NewString())
}

// NewManualID создаёт ID для действия, добавленного вручную.
func NewManualID() ActionID {
	return ActionID(manualIDPrefix + uuid.NewString())
}

// IsValid проверяет, что ID действия не пустой.
func (id ActionID) IsValid() bool {
	return len(id) > 0
}

// IsAuto возвращает true для ID, сгенерированного движком.
func (id ActionID) IsAuto() bool {
	return strings.HasPrefix(string(id), autoIDPrefix)
}

// String возвращает строковое представление ID.
func (id ActionID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип вмешательства.
type Type string

const (
	// TypeContactStudent - профилактическая встреча со студентом.
	TypeContactStudent Type = "contact_student"

	// TypeContactParent - связаться с родителями или опекунами.
	TypeContactParent Type = "contact_parent"

	// TypeCounseling - направление к школьному консультанту.
	TypeCounseling Type = "counseling"

	// TypeAcademicWarning - официальное академическое предупреждение.
	TypeAcademicWarning Type = "academic_warning"

	// TypeMonitoring - наблюдение за посещаемостью.
	TypeMonitoring Type = "monitoring"

	// TypeIntervention - план вмешательства при ухудшении динамики.
	TypeIntervention Type = "intervention"
)

// IsValid проверяет корректность типа действия.
func (t Type) IsValid() bool {
	switch t {
	case TypeContactStudent,
		TypeContactParent,
		TypeCounseling,
		TypeAcademicWarning,
		TypeMonitoring,
		TypeIntervention:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (t Type) String() string {
	return string(t)
}

// ParseType разбирает строку типа действия из внешнего источника.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", shared.ErrInvalidActionType
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PRIORITY
// ══════════════════════════════════════════════════════════════════════════════

// Priority определяет приоритет действия.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid проверяет корректность приоритета.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Weight возвращает числовой вес приоритета для сортировки:
// low=0, medium=1, high=2, critical=3.
func (p Priority) Weight() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

// Next возвращает следующий уровень приоритета.
// Для critical возвращает critical и false: выше эскалировать некуда.
func (p Priority) Next() (Priority, bool) {
	switch p {
	case PriorityLow:
		return PriorityMedium, true
	case PriorityMedium:
		return PriorityHigh, true
	case PriorityHigh:
		return PriorityCritical, true
	default:
		return PriorityCritical, false
	}
}

// String возвращает строковое представление приоритета.
func (p Priority) String() string {
	return string(p)
}

// ParsePriority разбирает строку приоритета из внешнего источника.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !p.IsValid() {
		return "", shared.ErrInvalidPriority
	}
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет статус исполнения действия.
// Жизненный цикл строго вперёд: pending → in_progress → completed.
type Status string

const (
	// StatusPending - действие создано и ждёт исполнителя.
	StatusPending Status = "pending"

	// StatusInProgress - действие взято в работу.
	StatusInProgress Status = "in_progress"

	// StatusCompleted - действие завершено. Терминальный статус.
	StatusCompleted Status = "completed"
)

// IsValid проверяет корректность статуса.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsFinal возвращает true для терминального статуса.
func (s Status) IsFinal() bool {
	return s == StatusCompleted
}

// Order возвращает порядковый номер статуса в жизненном цикле.
func (s Status) Order() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo проверяет, допустим ли переход в указанный статус:
// разрешён ровно один шаг вперёд.
func (s Status) CanAdvanceTo(next Status) bool {
	switch {
	case s == StatusPending && next == StatusInProgress:
		return true
	case s == StatusInProgress && next == StatusCompleted:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает строку статуса действия из внешнего источника.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.ErrInvalidActionStatus
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTE
// ══════════════════════════════════════════════════════════════════════════════

// Note — свободная заметка куратора о принятом решении.
type Note struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// ActionItem представляет одно действие по студенту.
type ActionItem struct {
	// ID - уникальный идентификатор действия.
	ID ActionID `json:"id"`

	// StudentID - студент, к которому относится действие.
	StudentID string `json:"student_id"`

	// Type - тип вмешательства.
	Type Type `json:"type"`

	// Title - краткий заголовок для списка дел куратора.
	Title string `json:"title"`

	// Description - развёрнутое описание с конкретными цифрами.
	Description string `json:"description"`

	// Priority - приоритет действия.
	Priority Priority `json:"priority"`

	// Status - текущий статус исполнения.
	Status Status `json:"status"`

	// DueDate - срок исполнения.
	DueDate time.Time `json:"due_date"`

	// AutoGenerated - true для действий, порождённых движком.
	AutoGenerated bool `json:"auto_generated"`

	// Notes - заметки куратора в хронологическом порядке.
	Notes []Note `json:"notes,omitempty"`

	// CreatedAt - время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewActionItemParams содержит параметры для создания действия.
type NewActionItemParams struct {
	ID            ActionID
	StudentID     string
	Type          Type
	Title         string
	Description   string
	Priority      Priority
	DueDate       time.Time
	AutoGenerated bool
}

// NewActionItem создаёт новое действие с валидацией.
// Новое действие всегда начинает жизнь в статусе pending.
func NewActionItem(params NewActionItemParams) (*ActionItem, error) {
	if !params.ID.IsValid() {
		return nil, shared.NewDomainError("action", "New", shared.ErrInvalidID, "action ID cannot be empty")
	}
	if strings.TrimSpace(params.StudentID) == "" {
		return nil, shared.NewDomainError("action", "New", shared.ErrEmptyValue, "student ID cannot be empty")
	}
	if !params.Type.IsValid() {
		return nil, shared.ErrInvalidActionType
	}
	if !params.Priority.IsValid() {
		return nil, shared.ErrInvalidPriority
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, shared.ErrEmptyActionTitle
	}
	if strings.TrimSpace(params.Description) == "" {
		return nil, shared.ErrEmptyActionText
	}

	now := time.Now().UTC()
	return &ActionItem{
		ID:            params.ID,
		StudentID:     params.StudentID,
		Type:          params.Type,
		Title:         strings.TrimSpace(params.Title),
		Description:   strings.TrimSpace(params.Description),
		Priority:      params.Priority,
		Status:        StatusPending,
		DueDate:       params.DueDate,
		AutoGenerated: params.AutoGenerated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceTo переводит действие в следующий статус.
// Переходы только вперёд и только на один шаг; откат и перепрыгивание
// через in_progress — ошибки, а не тихая коррекция.
func (a *ActionItem) AdvanceTo(next Status) error {
	if !next.IsValid() {
		return shared.ErrInvalidActionStatus
	}
	if a.Status.CanAdvanceTo(next) {
		a.Status = next
		a.UpdatedAt = time.Now().UTC()
		return nil
	}
	if next.Order() <= a.Status.Order() {
		return shared.NewDomainError("action", "AdvanceTo", shared.ErrBackwardTransition,
			fmt.Sprintf("cannot move %s from %s to %s", a.ID, a.Status, next))
	}
	return shared.NewDomainError("action", "AdvanceTo", shared.ErrSkippedTransition,
		fmt.Sprintf("cannot move %s from %s straight to %s", a.ID, a.Status, next))
}

// Start переводит действие в работу.
func (a *ActionItem) Start() error {
	return a.AdvanceTo(StatusInProgress)
}

// Complete завершает действие.
func (a *ActionItem) Complete() error {
	return a.AdvanceTo(StatusCompleted)
}

// ForceSetStatus устанавливает статус в обход жизненного цикла.
// Административная операция для исправления ошибок ввода.
func (a *ActionItem) ForceSetStatus(next Status) error {
	if !next.IsValid() {
		return shared.ErrInvalidActionStatus
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendNote добавляет заметку куратора.
func (a *ActionItem) AppendNote(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return shared.ErrEmptyActionNote
	}
	a.Notes = append(a.Notes, Note{
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// IsOverdue возвращает true, если срок действия прошёл, а оно не завершено.
func (a *ActionItem) IsOverdue(now time.Time) bool {
	return !a.Status.IsFinal() && now.After(a.DueDate)
}

// EscalatePriority поднимает приоритет просроченного действия на один уровень
// и фиксирует причину заметкой. Возвращает прежний приоритет.
// Непросроченные действия не эскалируются; critical — потолок.
func (a *ActionItem) EscalatePriority(now time.Time) (Priority, error) {
	if !a.IsOverdue(now) {
		return a.Priority, shared.ErrActionNotOverdue
	}
	next, ok := a.Priority.Next()
	if !ok {
		return a.Priority, shared.ErrPriorityCeiling
	}

	from := a.Priority
	a.Priority = next
	a.Notes = append(a.Notes, Note{
		Text: fmt.Sprintf("Priority escalated from %s to %s: action overdue since %s",
			from, next, a.DueDate.Format("2006-01-02")),
		CreatedAt: now.UTC(),
	})
	a.UpdatedAt = now.UTC()
	return from, nil
}

// Clone возвращает глубокую копию действия.
func (a *ActionItem) Clone() *ActionItem {
	clone := *a
	if a.Notes != nil {
		clone.Notes = make([]Note, len(a.Notes))
		copy(clone.Notes, a.Notes)
	}
	return &clone
}

// String возвращает строковое представление для логирования.
func (a *ActionItem) String() string {
	return fmt.Sprintf("ActionItem{ID: %s, Type: %s, Priority: %s, Status: %s}",
		a.ID, a.Type, a.Priority, a.Status)
}
