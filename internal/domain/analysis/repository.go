package analysis

import (
	"context"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для хранения срезов риска.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository определяет операции для срезов риска, прогонов
// скана и алертов.
type SnapshotRepository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Snapshots
	// ─────────────────────────────────────────────────────────────────────────

	// SaveSnapshot сохраняет срез риска.
	SaveSnapshot(ctx context.Context, snapshot *RiskSnapshot) error

	// LatestForStudent возвращает последний срез студента.
	// Возвращает ErrSnapshotNotFound, если срезов ещё нет.
	LatestForStudent(ctx context.Context, studentID string) (*RiskSnapshot, error)

	// LatestSnapshots возвращает последний срез каждого студента,
	// отсортированный по возрастанию процента (худшие первыми).
	LatestSnapshots(ctx context.Context, p shared.Pagination) ([]*RiskSnapshot, error)

	// CountByLevel возвращает количество студентов на каждом уровне риска
	// по последним срезам.
	CountByLevel(ctx context.Context) (map[RiskLevel]int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Scan Runs
	// ─────────────────────────────────────────────────────────────────────────

	// SaveScanRun сохраняет или обновляет прогон скана.
	SaveScanRun(ctx context.Context, run *ScanRun) error

	// LastScanRun возвращает последний прогон.
	// Возвращает ErrScanRunNotFound, если сканов ещё не было.
	LastScanRun(ctx context.Context) (*ScanRun, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Alerts
	// ─────────────────────────────────────────────────────────────────────────

	// InsertAlert сохраняет алерт о критическом риске.
	InsertAlert(ctx context.Context, alert *RiskAlert) error

	// ListRecentAlerts возвращает последние алерты, новые первыми.
	ListRecentAlerts(ctx context.Context, limit int, unacknowledgedOnly bool) ([]*RiskAlert, error)

	// AcknowledgeAlert отмечает алерт обработанным.
	// Возвращает ErrNotFound, если алерт не существует.
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// Для кеширования вычисленных отчётов (реализуется через Redis).
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache определяет операции кеширования отчётов.
type ReportCache interface {
	// GetReport получает отчёт из кеша.
	GetReport(ctx context.Context, studentID string) (*StudentReport, error)

	// SetReport сохраняет отчёт в кеш.
	SetReport(ctx context.Context, report *StudentReport, ttl time.Duration) error

	// InvalidateStudent удаляет кешированные данные студента.
	InvalidateStudent(ctx context.Context, studentID string) error
}

// CohortCache определяет операции кеширования сводки по когорте.
type CohortCache interface {
	// GetCohortSummary получает сводку из кеша.
	GetCohortSummary(ctx context.Context) (*CohortSummary, error)

	// SetCohortSummary сохраняет сводку в кеш.
	SetCohortSummary(ctx context.Context, summary *CohortSummary, ttl time.Duration) error

	// InvalidateCohort удаляет кешированную сводку.
	InvalidateCohort(ctx context.Context) error
}
