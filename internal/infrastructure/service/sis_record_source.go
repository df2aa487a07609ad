package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/infrastructure/external/sis"
)

// SISRecordSource adapts the sis.Client to the command.RecordSource port.
// Payload translation lives in sis.Mapper, so records leave this adapter
// already in domain form. Entries the mapper cannot translate are logged
// and dropped; one malformed SIS row must not fail the whole fetch.
type SISRecordSource struct {
	client *sis.Client
	mapper *sis.Mapper
	logger *slog.Logger
}

func NewSISRecordSource(client *sis.Client, logger *slog.Logger) *SISRecordSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SISRecordSource{
		client: client,
		mapper: sis.NewMapper(),
		logger: logger.With("component", "sis_record_source"),
	}
}

func (s *SISRecordSource) ActiveStudentIDs(ctx context.Context) ([]string, error) {
	roster, err := s.client.FetchRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("sis roster: %w", err)
	}
	return s.mapper.ActiveStudentIDs(roster), nil
}

func (s *SISRecordSource) RecordsSince(ctx context.Context, studentID string, since time.Time) ([]attendance.RawRecord, error) {
	dtos, err := s.client.FetchAttendance(ctx, studentID, since)
	if err != nil {
		return nil, fmt.Errorf("sis attendance: %w", err)
	}

	records, mapErrs := s.mapper.RecordsFromDTOs(dtos)
	for _, mapErr := range mapErrs {
		s.logger.Warn("dropped unmappable sis entry",
			"student_id", studentID,
			"error", mapErr,
		)
	}
	return records, nil
}
