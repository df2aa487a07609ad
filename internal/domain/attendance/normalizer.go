package attendance

import (
	"fmt"
	"sort"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NORMALIZER
// ══════════════════════════════════════════════════════════════════════════════

// Normalizer превращает сырые записи посещаемости в канонические своды
// по предметам. Это входные ворота движка: каждая запись валидируется,
// дубликаты (тот же предмет, тот же день) отклоняются, результат
// упорядочен детерминированно.
type Normalizer struct{}

// NewNormalizer создаёт нормализатор.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize группирует записи по предметам и считает своды.
// Пустой вход — валидный случай: возвращается пустой срез.
//
// Гарантии результата:
//   - каждая запись прошла Validate();
//   - не более одной записи на пару (предмет, день);
//   - своды отсортированы по коду предмета, затем по ID;
//   - инвариант Present+Late+Absent+Excused == Total выполняется по построению.
func (n *Normalizer) Normalize(records []RawRecord) ([]SubjectTally, error) {
	if len(records) == 0 {
		return []SubjectTally{}, nil
	}

	tallies := make(map[string]*SubjectTally)
	seen := make(map[string]struct{}, len(records))

	for i, record := range records {
		if err := record.Validate(); err != nil {
			return nil, shared.WrapError("attendance", "Normalize", shared.ErrValidation,
				fmt.Sprintf("record %d rejected", i), err)
		}

		dupKey := record.SubjectID + "|" + record.DayKey()
		if _, ok := seen[dupKey]; ok {
			return nil, shared.NewDomainError("attendance", "Normalize", shared.ErrDuplicateRecord,
				fmt.Sprintf("duplicate record for subject %s on %s", record.SubjectID, record.DayKey()))
		}
		seen[dupKey] = struct{}{}

		tally, ok := tallies[record.SubjectID]
		if !ok {
			tally = &SubjectTally{
				SubjectID:   record.SubjectID,
				SubjectName: record.SubjectName,
				SubjectCode: record.SubjectCode,
			}
			tallies[record.SubjectID] = tally
		}

		tally.Total++
		switch record.Status {
		case StatusPresent:
			tally.Present++
		case StatusAbsent:
			tally.Absent++
		case StatusLate:
			tally.Late++
		case StatusExcused:
			tally.Excused++
		}
	}

	result := make([]SubjectTally, 0, len(tallies))
	for _, tally := range tallies {
		result = append(result, *tally)
	}

	// Порядок в map недетерминирован, поэтому сортируем явно:
	// одинаковый вход всегда даёт одинаковый выход.
	sort.Slice(result, func(i, j int) bool {
		if result[i].SubjectCode != result[j].SubjectCode {
			return result[i].SubjectCode < result[j].SubjectCode
		}
		return result[i].SubjectID < result[j].SubjectID
	})

	return result, nil
}
