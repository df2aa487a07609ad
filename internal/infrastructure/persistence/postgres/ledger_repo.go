package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements action.Repository for PostgreSQL.
// The live ledger is owned by the session; this repository keeps the durable
// copy that survives session expiry and process restarts.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

const actionItemColumns = `id, session_id, student_id, action_type, title, description,
	priority, status, due_date, auto_generated, notes, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// WRITE OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// SaveItems persists a batch of session actions, upserting by action ID.
// Seeding writes the generated items once; re-saving after a mutation
// refreshes status, notes and timestamps.
func (r *LedgerRepository) SaveItems(ctx context.Context, sessionID string, items []*action.ActionItem) error {
	if len(items) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, item := range items {
			notes, err := marshalNotes(item.Notes)
			if err != nil {
				return fmt.Errorf("failed to marshal notes for %s: %w", item.ID, err)
			}

			batch.Queue(`
				INSERT INTO action_items
				(id, session_id, student_id, action_type, title, description,
				 priority, status, due_date, auto_generated, notes, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (id) DO UPDATE SET
					title = EXCLUDED.title,
					description = EXCLUDED.description,
					priority = EXCLUDED.priority,
					status = EXCLUDED.status,
					due_date = EXCLUDED.due_date,
					notes = EXCLUDED.notes,
					updated_at = EXCLUDED.updated_at
			`,
				string(item.ID),
				sessionID,
				item.StudentID,
				string(item.Type),
				item.Title,
				item.Description,
				string(item.Priority),
				string(item.Status),
				item.DueDate,
				item.AutoGenerated,
				notes,
				item.CreatedAt,
				item.UpdatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range items {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert action item: %w", err)
			}
		}

		return nil
	})
}

// UpdateItem refreshes a single action after a status change or a new note.
func (r *LedgerRepository) UpdateItem(ctx context.Context, sessionID string, item *action.ActionItem) error {
	notes, err := marshalNotes(item.Notes)
	if err != nil {
		return fmt.Errorf("failed to marshal notes for %s: %w", item.ID, err)
	}

	tag, err := r.conn.Exec(ctx, `
		UPDATE action_items
		SET title = $3,
		    description = $4,
		    priority = $5,
		    status = $6,
		    due_date = $7,
		    notes = $8,
		    updated_at = $9
		WHERE id = $1 AND session_id = $2
	`,
		string(item.ID),
		sessionID,
		item.Title,
		item.Description,
		string(item.Priority),
		string(item.Status),
		item.DueDate,
		notes,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update action item: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shared.ErrActionNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// READ OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// LoadBySession returns the actions of a session in creation order.
func (r *LedgerRepository) LoadBySession(ctx context.Context, sessionID string) ([]*action.ActionItem, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+actionItemColumns+`
		FROM action_items
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session actions: %w", err)
	}
	defer rows.Close()

	return scanActionItems(rows)
}

// ListByStudent returns every stored action of a student, newest session
// block first, creation order within a session.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string) ([]*action.ActionItem, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+actionItemColumns+`
		FROM action_items
		WHERE student_id = $1
		ORDER BY MIN(created_at) OVER (PARTITION BY session_id) DESC, created_at ASC, id ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query student actions: %w", err)
	}
	defer rows.Close()

	return scanActionItems(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// SCAN HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func scanActionItems(rows pgx.Rows) ([]*action.ActionItem, error) {
	items := make([]*action.ActionItem, 0)
	for rows.Next() {
		var item action.ActionItem
		var id, sessionID, actionType, priority, status string
		var notes []byte

		err := rows.Scan(
			&id,
			&sessionID,
			&item.StudentID,
			&actionType,
			&item.Title,
			&item.Description,
			&priority,
			&status,
			&item.DueDate,
			&item.AutoGenerated,
			&notes,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action item: %w", err)
		}

		item.ID = action.ActionID(id)
		item.Type = action.Type(actionType)
		item.Priority = action.Priority(priority)
		item.Status = action.Status(status)

		if err := unmarshalNotes(notes, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes for %s: %w", item.ID, err)
		}

		items = append(items, &item)
	}

	return items, rows.Err()
}

// marshalNotes serializes curator notes for the JSONB column.
// An item without notes is stored as an empty array, not JSON null.
func marshalNotes(notes []action.Note) ([]byte, error) {
	if len(notes) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(notes)
}

// unmarshalNotes restores curator notes; an empty array stays nil to match
// the in-memory representation of an item that never had notes.
func unmarshalNotes(raw []byte, item *action.ActionItem) error {
	if len(raw) == 0 {
		return nil
	}

	var notes []action.Note
	if err := json.Unmarshal(raw, &notes); err != nil {
		return err
	}

	if len(notes) > 0 {
		item.Notes = notes
	}
	return nil
}
