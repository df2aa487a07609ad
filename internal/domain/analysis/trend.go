package analysis

import (
	"fmt"
	"math"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TREND SIGNAL
// ══════════════════════════════════════════════════════════════════════════════

// TrendSignal — направление динамики посещаемости: сравнение среднего
// за последнее окно со средним за предыдущее окно того же размера.
// Ровно один из флагов Improving/Declining/Stable равен true.
// Средние равны nil, если данных не хватило на оба окна.
type TrendSignal struct {
	RecentAverage   *float64 `json:"recent_average"`
	PreviousAverage *float64 `json:"previous_average"`
	Change          float64  `json:"change"`
	Improving       bool     `json:"improving"`
	Declining       bool     `json:"declining"`
	Stable          bool     `json:"stable"`
}

// Direction возвращает направление одним словом для логов и событий.
func (s TrendSignal) Direction() string {
	switch {
	case s.Improving:
		return "improving"
	case s.Declining:
		return "declining"
	default:
		return "stable"
	}
}

// HasData возвращает true, если обоих окон хватило для сравнения.
func (s TrendSignal) HasData() bool {
	return s.RecentAverage != nil && s.PreviousAverage != nil
}

// String возвращает краткое представление для логирования.
func (s TrendSignal) String() string {
	if !s.HasData() {
		return "TrendSignal{stable, insufficient data}"
	}
	return fmt.Sprintf("TrendSignal{%s, change: %+.2f}", s.Direction(), s.Change)
}

// ══════════════════════════════════════════════════════════════════════════════
// TREND ANALYZER
// ══════════════════════════════════════════════════════════════════════════════

// TrendAnalyzer сравнивает два последних окна дневного ряда посещаемости.
// Малые колебания в пределах мёртвой зоны считаются стабильностью:
// сигнал о тренде должен означать реальное изменение поведения,
// а не шум расписания.
type TrendAnalyzer struct {
	cfg TrendConfig
}

// NewTrendAnalyzer создаёт анализатор с заданными параметрами окна.
func NewTrendAnalyzer(cfg TrendConfig) *TrendAnalyzer {
	return &TrendAnalyzer{cfg: cfg}
}

// Analyze вычисляет сигнал тренда по хронологическому дневному ряду.
// Ряд обязан быть строго возрастающим по датам — это проверяется на
// границе, а не принимается на веру. Если точек меньше, чем на два
// полных окна, возвращается stable с nil-средними: нехватка данных —
// не тренд.
func (a *TrendAnalyzer) Analyze(series []attendance.DailyRate) (TrendSignal, error) {
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			return TrendSignal{}, shared.NewDomainError("analysis", "Analyze", shared.ErrUnorderedSeries,
				fmt.Sprintf("series position %d is not after position %d", i, i-1))
		}
	}

	window := a.cfg.WindowDays
	if len(series) < 2*window {
		return TrendSignal{Stable: true}, nil
	}

	recent := averageRate(series[len(series)-window:])
	previous := averageRate(series[len(series)-2*window : len(series)-window])
	change := round2(recent - previous)

	signal := TrendSignal{
		RecentAverage:   &recent,
		PreviousAverage: &previous,
		Change:          change,
	}

	switch {
	case change > a.cfg.Deadband:
		signal.Improving = true
	case change < -a.cfg.Deadband:
		signal.Declining = true
	default:
		signal.Stable = true
	}

	return signal, nil
}

// averageRate возвращает среднее значение окна, округлённое до двух знаков.
// Вызывается только с непустым окном.
func averageRate(window []attendance.DailyRate) float64 {
	sum := 0.0
	for _, point := range window {
		sum += point.Rate
	}
	return round2(sum / float64(len(window)))
}

// round2 округляет до двух знаков после запятой.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
