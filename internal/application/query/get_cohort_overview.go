package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/projections"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COHORT OVERVIEW QUERY
// Возвращает обзор когорты из проекции риска: агрегаты по уровням и
// худших студентов. В отличие от get_cohort_risk, который собирает
// сводку из базы и кеша, обзор читает денормализованную проекцию в
// памяти — это путь для частых опросов дашборда.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// defaultWorstLimit — сколько худших студентов включать по умолчанию.
	defaultWorstLimit = 10

	// maxWorstLimit — потолок размера списка худших.
	maxWorstLimit = 50
)

// GetCohortOverviewQuery содержит параметры запроса обзора.
type GetCohortOverviewQuery struct {
	// WorstLimit — сколько худших студентов вернуть. Ноль — по умолчанию.
	WorstLimit int

	// Level — фильтр списка по уровню риска (пустая строка = худшие
	// по всем уровням).
	Level string
}

// Validate проверяет корректность параметров запроса.
func (q GetCohortOverviewQuery) Validate() (int, analysis.RiskLevel, error) {
	limit := q.WorstLimit
	if limit <= 0 {
		limit = defaultWorstLimit
	}
	if limit > maxWorstLimit {
		limit = maxWorstLimit
	}

	var level analysis.RiskLevel
	if q.Level != "" {
		parsed, err := analysis.ParseRiskLevel(q.Level)
		if err != nil {
			return 0, "", fmt.Errorf("get_cohort_overview: %w", err)
		}
		level = parsed
	}
	return limit, level, nil
}

// GetCohortOverviewResult содержит обзор когорты.
type GetCohortOverviewResult struct {
	// TotalStudents — число студентов в проекции.
	TotalStudents int `json:"total_students"`

	// Counts — распределение по уровням риска.
	Counts map[analysis.RiskLevel]int `json:"counts"`

	// AtRisk — число студентов с риском high или critical.
	AtRisk int `json:"at_risk"`

	// AveragePercentage — средний процент посещаемости по когорте.
	AveragePercentage float64 `json:"average_percentage"`

	// MedianPercentage — медианный процент.
	MedianPercentage float64 `json:"median_percentage"`

	// WorstPercentage — процент худшего студента.
	WorstPercentage float64 `json:"worst_percentage"`

	// Worst — худшие студенты (с учётом фильтра по уровню).
	Worst []*projections.CohortRiskEntry `json:"worst"`

	// LastRebuildAt — когда проекция последний раз перестраивалась
	// из снапшотов целиком.
	LastRebuildAt time.Time `json:"last_rebuild_at"`

	// Version — версия проекции; растёт при каждом изменении.
	Version int64 `json:"version"`

	// GeneratedAt — время генерации обзора.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetCohortOverviewHandler обрабатывает запросы обзора когорты.
type GetCohortOverviewHandler struct {
	view   *projections.CohortRiskView
	logger *slog.Logger
}

// NewGetCohortOverviewHandler создаёт новый обработчик.
func NewGetCohortOverviewHandler(view *projections.CohortRiskView, logger *slog.Logger) *GetCohortOverviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetCohortOverviewHandler{
		view:   view,
		logger: logger.With("handler", "get_cohort_overview"),
	}
}

// Handle выполняет запрос обзора когорты.
func (h *GetCohortOverviewHandler) Handle(ctx context.Context, query GetCohortOverviewQuery) (*GetCohortOverviewResult, error) {
	limit, level, err := query.Validate()
	if err != nil {
		return nil, err
	}

	var worst []*projections.CohortRiskEntry
	if level != "" {
		worst, err = h.view.ByLevel(ctx, level, limit)
	} else {
		worst, err = h.view.WorstStudents(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get_cohort_overview: %w", err)
	}

	meta := h.view.Metadata(ctx)

	return &GetCohortOverviewResult{
		TotalStudents:     meta.TotalStudents,
		Counts:            meta.Counts,
		AtRisk:            meta.AtRiskCount,
		AveragePercentage: meta.AveragePercentage,
		MedianPercentage:  meta.MedianPercentage,
		WorstPercentage:   meta.WorstPercentage,
		Worst:             worst,
		LastRebuildAt:     meta.LastRebuildAt,
		Version:           meta.Version,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}
