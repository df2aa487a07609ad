package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RecordRepository implements attendance.Repository for PostgreSQL.
type RecordRepository struct {
	conn *Connection
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(conn *Connection) *RecordRepository {
	return &RecordRepository{conn: conn}
}

const recordColumns = `student_id, subject_id, subject_name, subject_code, class_date, status`

// ─────────────────────────────────────────────────────────────────────────────
// READ OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// ListByStudent returns all records for a student ordered by date.
// A student with no records yields an empty slice, not an error.
func (r *RecordRepository) ListByStudent(ctx context.Context, studentID string) ([]attendance.RawRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY class_date ASC, subject_id ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByStudentSince returns records for a student starting from the given
// date inclusive, ordered by date.
func (r *RecordRepository) ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]attendance.RawRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE student_id = $1 AND class_date >= $2
		ORDER BY class_date ASC, subject_id ASC
	`, studentID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query records since %s: %w", since.Format("2006-01-02"), err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListStudentIDs returns the IDs of all students with at least one record
// from the given date on. Used by the background cohort scan.
func (r *RecordRepository) ListStudentIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT DISTINCT student_id
		FROM attendance_records
		WHERE class_date >= $1
		ORDER BY student_id ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query student ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountByStudent returns the number of records for a student.
func (r *RecordRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE student_id = $1
	`, studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	return count, nil
}

// LatestRecordDate returns the date of the student's newest record.
// The zero time means the student has no records yet; incremental sync
// uses this as its watermark.
func (r *RecordRepository) LatestRecordDate(ctx context.Context, studentID string) (time.Time, error) {
	var latest *time.Time
	err := r.conn.QueryRow(ctx, `
		SELECT MAX(class_date) FROM attendance_records WHERE student_id = $1
	`, studentID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest record date: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}

	return *latest, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// IMPORT OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// BulkInsert loads a batch of records via COPY. The whole batch is atomic:
// a record that collides with an existing (student, subject, date) row
// aborts the import and surfaces as an integrity error.
func (r *RecordRepository) BulkInsert(ctx context.Context, records []attendance.RawRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	source := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		source = append(source, []interface{}{
			rec.StudentID,
			rec.SubjectID,
			rec.SubjectName,
			rec.SubjectCode,
			rec.Date.UTC(),
			string(rec.Status),
		})
	}

	inserted, err := r.conn.CopyFrom(
		ctx,
		pgx.Identifier{"attendance_records"},
		[]string{"student_id", "subject_id", "subject_name", "subject_code", "class_date", "status"},
		pgx.CopyFromRows(source),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, shared.WrapError("attendance", "BulkInsert", shared.ErrIntegrity,
				"batch contains a record that already exists for the same student, subject and date", err)
		}
		return 0, fmt.Errorf("failed to copy records: %w", err)
	}

	return inserted, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SCAN HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func scanRecords(rows pgx.Rows) ([]attendance.RawRecord, error) {
	records := make([]attendance.RawRecord, 0)
	for rows.Next() {
		var rec attendance.RawRecord
		var status string

		err := rows.Scan(
			&rec.StudentID,
			&rec.SubjectID,
			&rec.SubjectName,
			&rec.SubjectCode,
			&rec.Date,
			&status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.Status = attendance.Status(status)
		records = append(records, rec)
	}

	return records, rows.Err()
}
