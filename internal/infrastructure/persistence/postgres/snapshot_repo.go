package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements analysis.SnapshotRepository for PostgreSQL.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

const snapshotColumns = `id, student_id, percentage, risk_level, total_classes, attended_classes,
	absent_classes, late_classes, excused_classes, trend_direction, trend_change, generated_at`

// latestSnapshotsSQL selects the most recent snapshot per student.
// DISTINCT ON keeps exactly one row per student_id, and the inner ORDER BY
// makes that row the newest one.
const latestSnapshotsSQL = `
	SELECT DISTINCT ON (student_id) ` + snapshotColumns + `
	FROM risk_snapshots
	ORDER BY student_id, generated_at DESC
`

// ─────────────────────────────────────────────────────────────────────────────
// SNAPSHOT OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// SaveSnapshot persists a risk snapshot.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *analysis.RiskSnapshot) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO risk_snapshots
		(id, student_id, percentage, risk_level, total_classes, attended_classes,
		 absent_classes, late_classes, excused_classes, trend_direction, trend_change, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		snapshot.ID,
		snapshot.StudentID,
		snapshot.Percentage,
		string(snapshot.RiskLevel),
		snapshot.TotalClasses,
		snapshot.AttendedClasses,
		snapshot.AbsentClasses,
		snapshot.LateClasses,
		snapshot.ExcusedClasses,
		snapshot.TrendDirection,
		snapshot.TrendChange,
		snapshot.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// LatestForStudent returns the most recent snapshot for a student.
func (r *SnapshotRepository) LatestForStudent(ctx context.Context, studentID string) (*analysis.RiskSnapshot, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM risk_snapshots
		WHERE student_id = $1
		ORDER BY generated_at DESC
		LIMIT 1
	`, studentID)

	snapshot, err := scanSnapshot(row)
	if IsNoRows(err) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snapshot, nil
}

// LatestSnapshots returns the most recent snapshot of every student,
// worst attendance first.
func (r *SnapshotRepository) LatestSnapshots(ctx context.Context, p shared.Pagination) ([]*analysis.RiskSnapshot, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT * FROM (`+latestSnapshotsSQL+`) latest
		ORDER BY percentage ASC, student_id ASC
		LIMIT $1 OFFSET $2
	`, p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*analysis.RiskSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, rows.Err()
}

// CountByLevel returns how many students sit at each risk level,
// based on the latest snapshot per student.
func (r *SnapshotRepository) CountByLevel(ctx context.Context) (map[analysis.RiskLevel]int, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT risk_level, COUNT(*)
		FROM (`+latestSnapshotsSQL+`) latest
		GROUP BY risk_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[analysis.RiskLevel]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[analysis.RiskLevel(level)] = count
	}

	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// SCAN RUN OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// SaveScanRun inserts or updates a scan run. The cohort scan saves the run
// once at start and again at completion, so this is an upsert by ID.
func (r *SnapshotRepository) SaveScanRun(ctx context.Context, run *analysis.ScanRun) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO scan_runs
		(id, started_at, finished_at, status, students_scanned, failed_students,
		 critical_count, high_count, medium_count, low_count, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			students_scanned = EXCLUDED.students_scanned,
			failed_students = EXCLUDED.failed_students,
			critical_count = EXCLUDED.critical_count,
			high_count = EXCLUDED.high_count,
			medium_count = EXCLUDED.medium_count,
			low_count = EXCLUDED.low_count,
			error = EXCLUDED.error
	`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		run.StudentsScanned,
		run.FailedStudents,
		run.CriticalCount,
		run.HighCount,
		run.MediumCount,
		run.LowCount,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan run: %w", err)
	}

	return nil
}

// LastScanRun returns the most recently started scan run.
func (r *SnapshotRepository) LastScanRun(ctx context.Context) (*analysis.ScanRun, error) {
	var run analysis.ScanRun
	var status string

	err := r.conn.QueryRow(ctx, `
		SELECT id, started_at, finished_at, status, students_scanned, failed_students,
		       critical_count, high_count, medium_count, low_count, error
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.StudentsScanned,
		&run.FailedStudents,
		&run.CriticalCount,
		&run.HighCount,
		&run.MediumCount,
		&run.LowCount,
		&run.Error,
	)

	if IsNoRows(err) {
		return nil, shared.ErrScanRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last scan run: %w", err)
	}

	run.Status = analysis.RunStatus(status)
	return &run, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ALERT OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// InsertAlert persists a critical-risk alert.
func (r *SnapshotRepository) InsertAlert(ctx context.Context, alert *analysis.RiskAlert) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO risk_alerts
		(id, student_id, risk_level, percentage, message, created_at, acknowledged, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		alert.ID,
		alert.StudentID,
		string(alert.RiskLevel),
		alert.Percentage,
		alert.Message,
		alert.CreatedAt,
		alert.Acknowledged,
		alert.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// ListRecentAlerts returns the newest alerts first.
func (r *SnapshotRepository) ListRecentAlerts(ctx context.Context, limit int, unacknowledgedOnly bool) ([]*analysis.RiskAlert, error) {
	query := `
		SELECT id, student_id, risk_level, percentage, message, created_at, acknowledged, acknowledged_at
		FROM risk_alerts
	`
	if unacknowledgedOnly {
		query += ` WHERE acknowledged = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*analysis.RiskAlert, 0)
	for rows.Next() {
		var alert analysis.RiskAlert
		var level string

		err := rows.Scan(
			&alert.ID,
			&alert.StudentID,
			&level,
			&alert.Percentage,
			&alert.Message,
			&alert.CreatedAt,
			&alert.Acknowledged,
			&alert.AcknowledgedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alert.RiskLevel = analysis.RiskLevel(level)
		alerts = append(alerts, &alert)
	}

	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as handled. Repeated acknowledgement is a
// no-op that keeps the original acknowledged_at.
func (r *SnapshotRepository) AcknowledgeAlert(ctx context.Context, alertID string) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE risk_alerts
		SET acknowledged = TRUE,
		    acknowledged_at = COALESCE(acknowledged_at, NOW())
		WHERE id = $1
	`, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("snapshot", "AcknowledgeAlert", shared.ErrNotFound,
			fmt.Sprintf("alert %s not found", alertID))
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SCAN HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func scanSnapshot(row pgx.Row) (*analysis.RiskSnapshot, error) {
	var snapshot analysis.RiskSnapshot
	var level string

	err := row.Scan(
		&snapshot.ID,
		&snapshot.StudentID,
		&snapshot.Percentage,
		&level,
		&snapshot.TotalClasses,
		&snapshot.AttendedClasses,
		&snapshot.AbsentClasses,
		&snapshot.LateClasses,
		&snapshot.ExcusedClasses,
		&snapshot.TrendDirection,
		&snapshot.TrendChange,
		&snapshot.GeneratedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snapshot.RiskLevel = analysis.RiskLevel(level)
	return &snapshot, nil
}
