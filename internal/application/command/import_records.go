package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT RECORDS COMMAND
// Bulk load of raw attendance records from the school information system.
// Records are validated up front; a single bad record rejects the whole batch
// so partial imports never reach the store.
// ══════════════════════════════════════════════════════════════════════════════

// ImportRecordsCommand contains the batch to import.
type ImportRecordsCommand struct {
	Records []attendance.RawRecord
}

// Validate validates the command.
func (c ImportRecordsCommand) Validate() error {
	if len(c.Records) == 0 {
		return shared.NewDomainError("attendance", "ImportRecords", shared.ErrEmptyValue, "record batch is empty")
	}
	for i, record := range c.Records {
		if err := record.Validate(); err != nil {
			return shared.WrapError("attendance", "ImportRecords", shared.ErrValidation,
				fmt.Sprintf("record %d rejected", i), err)
		}
	}
	return nil
}

// ImportRecordsResult contains the outcome of the import.
type ImportRecordsResult struct {
	// Inserted is the number of rows written to the store.
	Inserted int64

	// Students is the number of distinct students in the batch.
	Students int
}

// ImportRecordsHandler handles the ImportRecordsCommand.
type ImportRecordsHandler struct {
	recordRepo  attendance.Repository
	reportCache analysis.ReportCache
	logger      *slog.Logger
}

// NewImportRecordsHandler creates a new ImportRecordsHandler.
// reportCache may be nil; stale reports then age out by TTL instead.
func NewImportRecordsHandler(recordRepo attendance.Repository, reportCache analysis.ReportCache, logger *slog.Logger) *ImportRecordsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportRecordsHandler{
		recordRepo:  recordRepo,
		reportCache: reportCache,
		logger:      logger.With("handler", "import_records"),
	}
}

// Handle executes the import records command.
func (h *ImportRecordsHandler) Handle(ctx context.Context, cmd ImportRecordsCommand) (*ImportRecordsResult, error) {
	// 1. Validate the whole batch before touching the store
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	students := make(map[string]struct{}, len(cmd.Records))
	for _, record := range cmd.Records {
		students[record.StudentID] = struct{}{}
	}

	// 2. Bulk insert
	inserted, err := h.recordRepo.BulkInsert(ctx, cmd.Records)
	if err != nil {
		return nil, fmt.Errorf("import_records: failed to insert batch: %w", err)
	}

	// 3. Invalidate cached reports for every touched student (non-critical)
	if h.reportCache != nil {
		for studentID := range students {
			if err := h.reportCache.InvalidateStudent(ctx, studentID); err != nil {
				h.logger.Warn("failed to invalidate report cache",
					"student_id", studentID,
					"error", err,
				)
			}
		}
	}

	h.logger.Info("records imported",
		"records", len(cmd.Records),
		"inserted", inserted,
		"students", len(students),
	)

	return &ImportRecordsResult{
		Inserted: inserted,
		Students: len(students),
	}, nil
}
