package action

import (
	"fmt"
	"math"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// Журнал действий одной аналитической сессии студента. Журнал владеет
// каноническим состоянием: наружу всегда отдаются копии, чтобы внешний
// код не мог изменить действие в обход переходов статусов.
// Журнал не потокобезопасен - синхронизацию обеспечивает сессия.
// ══════════════════════════════════════════════════════════════════════════════

// Ledger хранит действия студента в порядке добавления.
type Ledger struct {
	studentID string
	items     map[ActionID]*ActionItem
	order     []ActionID
}

// NewLedger создаёт пустой журнал для студента.
func NewLedger(studentID string) *Ledger {
	return &Ledger{
		studentID: studentID,
		items:     make(map[ActionID]*ActionItem),
		order:     make([]ActionID, 0, 8),
	}
}

// StudentID возвращает студента, которому принадлежит журнал.
func (l *Ledger) StudentID() string {
	return l.studentID
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutations
// ─────────────────────────────────────────────────────────────────────────────

// Draft содержит параметры ручного действия куратора.
type Draft struct {
	Type        Type
	Title       string
	Description string
	Priority    Priority
	DueDate     time.Time
}

// Add добавляет ручное действие в журнал. Заголовок и описание
// обязательны; пустые значения — ошибка валидации.
func (l *Ledger) Add(draft Draft) (*ActionItem, error) {
	item, err := NewActionItem(NewActionItemParams{
		ID:            NewManualID(),
		StudentID:     l.studentID,
		Type:          draft.Type,
		Title:         draft.Title,
		Description:   draft.Description,
		Priority:      draft.Priority,
		DueDate:       draft.DueDate,
		AutoGenerated: false,
	})
	if err != nil {
		return nil, err
	}

	l.items[item.ID] = item
	l.order = append(l.order, item.ID)
	return item.Clone(), nil
}

// Seed загружает сгенерированные действия, сохраняя их порядок.
// Повторяющийся ID — ошибка: генератор всегда выдаёт свежие ID,
// а дубликат означает двойное заполнение журнала.
func (l *Ledger) Seed(items []*ActionItem) error {
	for _, item := range items {
		if item == nil {
			return shared.NewDomainError("action", "Seed", shared.ErrInvalidInput, "nil action item")
		}
		if _, exists := l.items[item.ID]; exists {
			return shared.NewDomainError("action", "Seed", shared.ErrActionExists,
				fmt.Sprintf("action %s is already in the ledger", item.ID))
		}
	}
	for _, item := range items {
		clone := item.Clone()
		l.items[clone.ID] = clone
		l.order = append(l.order, clone.ID)
	}
	return nil
}

// Advance переводит действие в следующий статус (только вперёд).
// Возвращает обновлённую копию действия.
func (l *Ledger) Advance(id ActionID, next Status) (*ActionItem, error) {
	item, err := l.find(id)
	if err != nil {
		return nil, err
	}
	if err := item.AdvanceTo(next); err != nil {
		return nil, err
	}
	return item.Clone(), nil
}

// ForceSet устанавливает статус действия в обход жизненного цикла.
// Административная операция для исправления ошибок ввода.
func (l *Ledger) ForceSet(id ActionID, next Status) (*ActionItem, error) {
	item, err := l.find(id)
	if err != nil {
		return nil, err
	}
	if err := item.ForceSetStatus(next); err != nil {
		return nil, err
	}
	return item.Clone(), nil
}

// AppendNote добавляет заметку куратора к действию.
func (l *Ledger) AppendNote(id ActionID, text string) (*ActionItem, error) {
	item, err := l.find(id)
	if err != nil {
		return nil, err
	}
	if err := item.AppendNote(text); err != nil {
		return nil, err
	}
	return item.Clone(), nil
}

// Escalate поднимает приоритет просроченного действия на один уровень.
// Возвращает обновлённую копию действия и прежний приоритет.
func (l *Ledger) Escalate(id ActionID, now time.Time) (*ActionItem, Priority, error) {
	item, err := l.find(id)
	if err != nil {
		return nil, "", err
	}
	from, err := item.EscalatePriority(now)
	if err != nil {
		return nil, from, err
	}
	return item.Clone(), from, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// ListFilter задаёт необязательные фильтры списка действий.
// Нулевое значение поля означает отсутствие фильтра.
type ListFilter struct {
	Status   Status
	Priority Priority
	Type     Type
}

// Get возвращает копию действия по ID.
func (l *Ledger) Get(id ActionID) (*ActionItem, error) {
	item, err := l.find(id)
	if err != nil {
		return nil, err
	}
	return item.Clone(), nil
}

// List возвращает копии действий в порядке добавления, применяя фильтры.
func (l *Ledger) List(filter ListFilter) []*ActionItem {
	result := make([]*ActionItem, 0, len(l.order))
	for _, id := range l.order {
		item := l.items[id]
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && item.Priority != filter.Priority {
			continue
		}
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		result = append(result, item.Clone())
	}
	return result
}

// Overdue возвращает копии просроченных действий в порядке добавления.
func (l *Ledger) Overdue(now time.Time) []*ActionItem {
	result := make([]*ActionItem, 0)
	for _, id := range l.order {
		if item := l.items[id]; item.IsOverdue(now) {
			result = append(result, item.Clone())
		}
	}
	return result
}

// Count возвращает общее количество действий в журнале.
func (l *Ledger) Count() int {
	return len(l.order)
}

// Summary — сводка журнала для панели куратора.
type Summary struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	CriticalCount  int     `json:"critical_count"`
	CompletionRate float64 `json:"completion_rate"`
}

// Summarize считает сводку по журналу. Для пустого журнала
// completion_rate равен 0 — явная защита от деления на ноль.
func (l *Ledger) Summarize() Summary {
	s := Summary{Total: len(l.order)}
	for _, id := range l.order {
		item := l.items[id]
		switch item.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		}
		if item.Priority == PriorityCritical {
			s.CriticalCount++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = math.Round(float64(s.Completed)/float64(s.Total)*100) / 100
	}
	return s
}

// find возвращает каноническое действие по ID.
func (l *Ledger) find(id ActionID) (*ActionItem, error) {
	item, ok := l.items[id]
	if !ok {
		return nil, shared.NewDomainError("action", "Find", shared.ErrActionNotFound,
			fmt.Sprintf("action %s is not in the ledger", id))
	}
	return item, nil
}
