package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COHORT RISK QUERY
// Возвращает распределение рисков по когорте: последний снапшот каждого
// студента (худшие первыми), счётчики по уровням и последний фоновый
// скан. Сводка кешируется целиком; фильтр по уровню применяется уже к
// загруженным данным.
// ══════════════════════════════════════════════════════════════════════════════

// defaultCohortTTL — время жизни кешированной сводки.
const defaultCohortTTL = 10 * time.Minute

// GetCohortRiskQuery содержит параметры запроса сводки по когорте.
type GetCohortRiskQuery struct {
	// Page — страница (начиная с 1).
	Page int

	// PageSize — размер страницы (по умолчанию 20, максимум 100).
	PageSize int

	// Level — фильтр по уровню риска (пустая строка = все уровни).
	Level string
}

// Validate проверяет корректность параметров запроса.
func (q GetCohortRiskQuery) Validate() (shared.Pagination, analysis.RiskLevel, error) {
	pagination := shared.NewPagination(q.Page, q.PageSize)

	var level analysis.RiskLevel
	if q.Level != "" {
		parsed, err := analysis.ParseRiskLevel(q.Level)
		if err != nil {
			return pagination, "", fmt.Errorf("get_cohort_risk: %w", err)
		}
		level = parsed
	}
	return pagination, level, nil
}

// ScanRunDTO — сведения о последнем фоновом скане.
type ScanRunDTO struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	StudentsScanned int        `json:"students_scanned"`
	FailedStudents  int        `json:"failed_students"`
	DurationMs      int64      `json:"duration_ms"`
}

// GetCohortRiskResult содержит сводку по когорте.
type GetCohortRiskResult struct {
	// Entries — снапшоты страницы, худшие первыми.
	Entries []*analysis.RiskSnapshot `json:"entries"`

	// Counts — количество студентов на каждом уровне риска.
	Counts map[analysis.RiskLevel]int `json:"counts"`

	// TotalStudents — общее число студентов со снапшотами.
	TotalStudents int `json:"total_students"`

	// AtRisk — число студентов с риском high или critical.
	AtRisk int `json:"at_risk"`

	// LastScan — последний фоновый скан (nil, если сканов не было).
	LastScan *ScanRunDTO `json:"last_scan,omitempty"`

	// FromCache — сводка взята из кеша.
	FromCache bool `json:"from_cache"`

	// GeneratedAt — время генерации сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetCohortRiskHandler обрабатывает запросы сводки по когорте.
type GetCohortRiskHandler struct {
	snapshotRepo analysis.SnapshotRepository
	cohortCache  analysis.CohortCache
	logger       *slog.Logger
	cacheTTL     time.Duration
}

// NewGetCohortRiskHandler создаёт новый обработчик.
// cohortCache может быть nil — тогда сводка всегда считается заново.
func NewGetCohortRiskHandler(
	snapshotRepo analysis.SnapshotRepository,
	cohortCache analysis.CohortCache,
	logger *slog.Logger,
) *GetCohortRiskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetCohortRiskHandler{
		snapshotRepo: snapshotRepo,
		cohortCache:  cohortCache,
		logger:       logger.With("handler", "get_cohort_risk"),
		cacheTTL:     defaultCohortTTL,
	}
}

// Handle выполняет запрос сводки по когорте.
func (h *GetCohortRiskHandler) Handle(ctx context.Context, query GetCohortRiskQuery) (*GetCohortRiskResult, error) {
	pagination, level, err := query.Validate()
	if err != nil {
		return nil, err
	}

	summary, fromCache := h.loadSummary(ctx, pagination)
	if summary == nil {
		summary, err = h.buildSummary(ctx, pagination)
		if err != nil {
			return nil, err
		}
	}

	entries := summary.Entries
	if level != "" {
		entries = filterByLevel(entries, level)
	}

	result := &GetCohortRiskResult{
		Entries:       entries,
		Counts:        summary.Counts,
		TotalStudents: summary.TotalStudents,
		AtRisk:        summary.AtRiskCount(),
		FromCache:     fromCache,
		GeneratedAt:   summary.GeneratedAt,
	}
	result.LastScan = h.lastScan(ctx)
	return result, nil
}

// loadSummary пытается взять сводку из кеша. Кеш хранит только первую
// страницу канонического размера; остальные запросы идут мимо кеша.
func (h *GetCohortRiskHandler) loadSummary(ctx context.Context, p shared.Pagination) (*analysis.CohortSummary, bool) {
	if h.cohortCache == nil || p.Page != 1 || p.PageSize != shared.DefaultPageSize {
		return nil, false
	}
	summary, err := h.cohortCache.GetCohortSummary(ctx)
	if err != nil {
		if !shared.IsNotFound(err) {
			h.logger.Debug("cohort cache degraded", "error", err)
		}
		return nil, false
	}
	return summary, true
}

// buildSummary собирает сводку из репозитория и кеширует её.
func (h *GetCohortRiskHandler) buildSummary(ctx context.Context, p shared.Pagination) (*analysis.CohortSummary, error) {
	entries, err := h.snapshotRepo.LatestSnapshots(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get_cohort_risk: failed to load snapshots: %w", err)
	}
	counts, err := h.snapshotRepo.CountByLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_cohort_risk: failed to count levels: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	summary := &analysis.CohortSummary{
		TotalStudents: total,
		Counts:        counts,
		Entries:       entries,
		GeneratedAt:   time.Now().UTC(),
	}

	if h.cohortCache != nil && p.Page == 1 && p.PageSize == shared.DefaultPageSize {
		if err := h.cohortCache.SetCohortSummary(ctx, summary, h.cacheTTL); err != nil {
			h.logger.Debug("failed to cache cohort summary", "error", err)
		}
	}
	return summary, nil
}

// lastScan возвращает последний фоновый скан, если он был.
func (h *GetCohortRiskHandler) lastScan(ctx context.Context) *ScanRunDTO {
	run, err := h.snapshotRepo.LastScanRun(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrScanRunNotFound) {
			h.logger.Debug("failed to load last scan run", "error", err)
		}
		return nil
	}
	return &ScanRunDTO{
		ID:              run.ID,
		Status:          run.Status.String(),
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		StudentsScanned: run.StudentsScanned,
		FailedStudents:  run.FailedStudents,
		DurationMs:      run.Duration().Milliseconds(),
	}
}

// filterByLevel оставляет снапшоты одного уровня риска.
func filterByLevel(entries []*analysis.RiskSnapshot, level analysis.RiskLevel) []*analysis.RiskSnapshot {
	filtered := make([]*analysis.RiskSnapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.RiskLevel == level {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
