package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
	"github.com/edupulse/attendance-insight/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY RATES QUERY
// Возвращает дневной ряд посещаемости студента за окно в N дней: по точке
// на каждый день с занятиями. Ряд строится доменной функцией из сырых
// записей; дашборд рисует по нему спарклайн рядом с общим процентом.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// defaultRatesWindowDays — окно ряда по умолчанию.
	defaultRatesWindowDays = 30

	// maxRatesWindowDays — максимальное окно: дальше ряд перестаёт быть
	// спарклайном и становится выгрузкой.
	maxRatesWindowDays = 180
)

// GetDailyRatesQuery содержит параметры запроса дневного ряда.
type GetDailyRatesQuery struct {
	// StudentID — идентификатор студента.
	StudentID string

	// Days — размер окна в днях, считая назад от сегодня.
	// Ноль — окно по умолчанию.
	Days int
}

// Validate проверяет корректность параметров запроса.
func (q GetDailyRatesQuery) Validate() (shared.StudentID, int, error) {
	studentID, err := shared.NewStudentID(q.StudentID)
	if err != nil {
		return "", 0, fmt.Errorf("get_daily_rates: %w", err)
	}

	days := q.Days
	if days <= 0 {
		days = defaultRatesWindowDays
	}
	if days > maxRatesWindowDays {
		days = maxRatesWindowDays
	}
	return studentID, days, nil
}

// GetDailyRatesResult содержит дневной ряд посещаемости.
type GetDailyRatesResult struct {
	// StudentID — идентификатор студента.
	StudentID string `json:"student_id"`

	// From — начало окна (UTC, начало дня).
	From time.Time `json:"from"`

	// To — конец окна (UTC, начало сегодняшнего дня).
	To time.Time `json:"to"`

	// Series — точки ряда в хронологическом порядке.
	// Дни без занятий в ряд не входят.
	Series []attendance.DailyRate `json:"series"`

	// AverageRate — средний дневной процент по точкам ряда.
	AverageRate float64 `json:"average_rate"`

	// GeneratedAt — время генерации.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetDailyRatesHandler обрабатывает запросы дневного ряда.
type GetDailyRatesHandler struct {
	recordRepo attendance.Repository
	logger     *slog.Logger
}

// NewGetDailyRatesHandler создаёт новый обработчик.
func NewGetDailyRatesHandler(recordRepo attendance.Repository, logger *slog.Logger) *GetDailyRatesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetDailyRatesHandler{
		recordRepo: recordRepo,
		logger:     logger.With("handler", "get_daily_rates"),
	}
}

// Handle выполняет запрос дневного ряда.
func (h *GetDailyRatesHandler) Handle(ctx context.Context, query GetDailyRatesQuery) (*GetDailyRatesResult, error) {
	studentID, days, err := query.Validate()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	to := timeutil.DayOf(now)
	from := timeutil.AddDays(to, -(days - 1))

	records, err := h.recordRepo.ListByStudentSince(ctx, studentID.String(), from)
	if err != nil {
		return nil, fmt.Errorf("get_daily_rates: failed to load records: %w", err)
	}

	series := attendance.BuildDailySeries(records)

	average := 0.0
	for _, point := range series {
		average += point.Rate
	}
	if len(series) > 0 {
		average /= float64(len(series))
	}

	h.logger.Debug("daily rates built",
		"student_id", studentID.String(),
		"days", days,
		"points", len(series),
	)

	return &GetDailyRatesResult{
		StudentID:   studentID.String(),
		From:        from,
		To:          to,
		Series:      series,
		AverageRate: average,
		GeneratedAt: now,
	}, nil
}
