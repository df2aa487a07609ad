// Package query contains read operations following CQRS pattern.
// Queries never modify domain state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/application/session"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT REPORT QUERY
// Возвращает аналитический отчёт студента. Источники по убыванию
// приоритета: кеш Redis → отчёт активной сессии → пересчёт из сырых
// записей. Пересчёт только читает: сессия не создаётся, журнал
// действий не заполняется.
// ══════════════════════════════════════════════════════════════════════════════

// Источник отчёта в результате запроса.
const (
	ReportSourceCache    = "cache"
	ReportSourceSession  = "session"
	ReportSourceComputed = "computed"
)

// GetStudentReportQuery содержит параметры запроса отчёта.
type GetStudentReportQuery struct {
	// StudentID — идентификатор студента.
	StudentID string

	// ForceRefresh пропускает кеш и сессию и пересчитывает отчёт.
	ForceRefresh bool
}

// Validate проверяет корректность параметров запроса.
func (q GetStudentReportQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return fmt.Errorf("get_student_report: %w", err)
	}
	return nil
}

// GetStudentReportResult содержит отчёт и его происхождение.
type GetStudentReportResult struct {
	// StudentID — идентификатор студента.
	StudentID string `json:"student_id"`

	// Report — аналитический отчёт.
	Report *analysis.StudentReport `json:"report"`

	// ActionSummary — сводка журнала действий активной сессии.
	// nil, если у студента нет активной сессии.
	ActionSummary *action.Summary `json:"action_summary,omitempty"`

	// Source — откуда взят отчёт: cache, session или computed.
	Source string `json:"source"`

	// RetrievedAt — время выполнения запроса.
	RetrievedAt time.Time `json:"retrieved_at"`
}

// GetStudentReportHandler обрабатывает запросы отчёта студента.
type GetStudentReportHandler struct {
	recordRepo  attendance.Repository
	sessions    *session.Manager
	reportCache analysis.ReportCache
	logger      *slog.Logger

	normalizer *attendance.Normalizer
	aggregator *attendance.Aggregator
	trend      *analysis.TrendAnalyzer
	classifier *analysis.Classifier
}

// NewGetStudentReportHandler создаёт новый обработчик.
// reportCache может быть nil — тогда работают только сессия и пересчёт.
func NewGetStudentReportHandler(
	recordRepo attendance.Repository,
	sessions *session.Manager,
	reportCache analysis.ReportCache,
	logger *slog.Logger,
	engine analysis.Config,
) (*GetStudentReportHandler, error) {
	if engine == (analysis.Config{}) {
		engine = analysis.DefaultConfig()
	}
	if err := engine.Validate(); err != nil {
		return nil, fmt.Errorf("get_student_report: engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GetStudentReportHandler{
		recordRepo:  recordRepo,
		sessions:    sessions,
		reportCache: reportCache,
		logger:      logger.With("handler", "get_student_report"),
		normalizer:  attendance.NewNormalizer(),
		aggregator:  attendance.NewAggregator(),
		trend:       analysis.NewTrendAnalyzer(engine.Trend),
		classifier:  analysis.NewClassifier(engine.Bands),
	}, nil
}

// Handle выполняет запрос отчёта студента.
func (h *GetStudentReportHandler) Handle(ctx context.Context, query GetStudentReportQuery) (*GetStudentReportResult, error) {
	// Валидация входных данных
	if err := query.Validate(); err != nil {
		return nil, err
	}

	result := &GetStudentReportResult{
		StudentID:   query.StudentID,
		RetrievedAt: time.Now().UTC(),
	}
	result.ActionSummary = h.actionSummary(query.StudentID)

	if !query.ForceRefresh {
		// Попытка получить из кеша. Любая ошибка кеша (включая открытый
		// circuit breaker в Redis-обёртке) деградирует к пересчёту.
		if report, err := h.tryCache(ctx, query.StudentID); err == nil {
			result.Report = report
			result.Source = ReportSourceCache
			return result, nil
		}

		// Попытка взять отчёт активной сессии
		if report := h.trySession(query.StudentID); report != nil {
			result.Report = report
			result.Source = ReportSourceSession
			return result, nil
		}
	}

	// Пересчёт из сырых записей (только чтение)
	report, err := h.compute(ctx, query.StudentID)
	if err != nil {
		return nil, err
	}
	result.Report = report
	result.Source = ReportSourceComputed
	return result, nil
}

// tryCache пытается получить отчёт из кеша.
func (h *GetStudentReportHandler) tryCache(ctx context.Context, studentID string) (*analysis.StudentReport, error) {
	if h.reportCache == nil {
		return nil, shared.ErrUnavailable
	}

	report, err := h.reportCache.GetReport(ctx, studentID)
	if err != nil {
		if !shared.IsNotFound(err) {
			h.logger.Debug("report cache degraded",
				"student_id", studentID,
				"error", err,
			)
		}
		return nil, err
	}
	return report, nil
}

// trySession возвращает отчёт активной сессии студента, если она есть.
func (h *GetStudentReportHandler) trySession(studentID string) *analysis.StudentReport {
	if h.sessions == nil {
		return nil
	}
	sess, err := h.sessions.GetByStudent(studentID)
	if err != nil {
		return nil
	}
	return sess.Report()
}

// compute пересчитывает отчёт из сырых записей без побочных эффектов.
func (h *GetStudentReportHandler) compute(ctx context.Context, studentID string) (*analysis.StudentReport, error) {
	records, err := h.recordRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_student_report: failed to load records: %w", err)
	}

	tallies, err := h.normalizer.Normalize(records)
	if err != nil {
		return nil, fmt.Errorf("get_student_report: %w", err)
	}
	overall, err := h.aggregator.Aggregate(tallies)
	if err != nil {
		return nil, fmt.Errorf("get_student_report: %w", err)
	}
	trendSignal, err := h.trend.Analyze(attendance.BuildDailySeries(records))
	if err != nil {
		return nil, fmt.Errorf("get_student_report: %w", err)
	}

	return &analysis.StudentReport{
		StudentID:   studentID,
		GeneratedAt: time.Now().UTC(),
		Tallies:     tallies,
		Overall:     overall,
		Trend:       trendSignal,
		Risk:        h.classifier.Classify(overall),
	}, nil
}

// actionSummary возвращает сводку журнала активной сессии.
func (h *GetStudentReportHandler) actionSummary(studentID string) *action.Summary {
	if h.sessions == nil {
		return nil
	}
	sess, err := h.sessions.GetByStudent(studentID)
	if err != nil {
		return nil
	}
	summary := sess.Summary()
	return &summary
}
