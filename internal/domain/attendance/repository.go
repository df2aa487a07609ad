package attendance

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем записей.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции чтения и загрузки записей посещаемости.
// Таблицу записей наполняет внешний конвейер школьной системы; движок
// читает её и пересчитывает производные данные, ничего не изменяя.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Read Operations
	// ─────────────────────────────────────────────────────────────────────────

	// ListByStudent возвращает все записи студента, упорядоченные по дате.
	// Студент без записей — валидный случай: пустой срез, не ошибка.
	ListByStudent(ctx context.Context, studentID string) ([]RawRecord, error)

	// ListByStudentSince возвращает записи студента начиная с указанной даты
	// включительно, упорядоченные по дате.
	ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]RawRecord, error)

	// ListStudentIDs возвращает ID всех студентов, у которых есть хотя бы
	// одна запись начиная с указанной даты. Используется фоновым сканом.
	ListStudentIDs(ctx context.Context, since time.Time) ([]string, error)

	// CountByStudent возвращает количество записей студента.
	CountByStudent(ctx context.Context, studentID string) (int, error)

	// LatestRecordDate возвращает дату самой свежей записи студента.
	// Нулевое время означает, что записей ещё нет. Синхронизация с внешней
	// системой использует эту дату как водяной знак инкрементальной догрузки.
	LatestRecordDate(ctx context.Context, studentID string) (time.Time, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Import Operations
	// ─────────────────────────────────────────────────────────────────────────

	// BulkInsert загружает пачку записей (импорт из школьной системы).
	// Каждая запись должна проходить Validate до вызова.
	// Возвращает количество вставленных строк.
	BulkInsert(ctx context.Context, records []RawRecord) (int64, error)
}
