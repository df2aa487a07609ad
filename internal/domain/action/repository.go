package action

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Журнал живёт в памяти сессии; Postgres хранит копию для истории
// и восстановления. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции долговременного хранения действий.
type Repository interface {
	// SaveItems сохраняет пачку действий сессии (upsert по ID).
	SaveItems(ctx context.Context, sessionID string, items []*ActionItem) error

	// UpdateItem обновляет одно действие после изменения статуса или заметок.
	// Возвращает ErrActionNotFound, если действие не сохранялось.
	UpdateItem(ctx context.Context, sessionID string, item *ActionItem) error

	// LoadBySession возвращает действия сессии в порядке создания.
	LoadBySession(ctx context.Context, sessionID string) ([]*ActionItem, error)

	// ListByStudent возвращает все сохранённые действия студента,
	// новые сессии первыми.
	ListByStudent(ctx context.Context, studentID string) ([]*ActionItem, error)
}
