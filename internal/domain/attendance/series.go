package attendance

import (
	"sort"
	"time"
)

// DailyRate — точка дневного ряда посещаемости: дата (UTC, начало дня)
// и процент посещаемости за этот день.
type DailyRate struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// BuildDailySeries строит хронологический дневной ряд из сырых записей.
// Для каждого дня с занятиями считается процент по той же формуле, что
// и общий: attended / (total - excused) * 100. Дни без учитываемых
// занятий (только excused) в ряд не попадают — сигнала в них нет.
// Записи валидировать не обязан: ряд строится после нормализации.
func BuildDailySeries(records []RawRecord) []DailyRate {
	if len(records) == 0 {
		return []DailyRate{}
	}

	type dayCount struct {
		attended  int
		countable int
	}
	days := make(map[string]*dayCount)

	for _, record := range records {
		key := record.DayKey()
		count, ok := days[key]
		if !ok {
			count = &dayCount{}
			days[key] = count
		}
		if record.Status.CountsTowardRate() {
			count.countable++
			if record.Status.CountsAsAttended() {
				count.attended++
			}
		}
	}

	series := make([]DailyRate, 0, len(days))
	for key, count := range days {
		if count.countable == 0 {
			continue
		}
		date, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		series = append(series, DailyRate{
			Date: date.UTC(),
			Rate: round2(float64(count.attended) / float64(count.countable) * 100),
		})
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})

	return series
}
