package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACKNOWLEDGE ALERT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AcknowledgeAlertCommand marks a critical-risk alert as handled.
type AcknowledgeAlertCommand struct {
	AlertID string
}

// Validate validates the command.
func (c AcknowledgeAlertCommand) Validate() error {
	if strings.TrimSpace(c.AlertID) == "" {
		return shared.NewDomainError("analysis", "AcknowledgeAlert", shared.ErrInvalidID, "alert id is required")
	}
	return nil
}

// AcknowledgeAlertHandler handles the AcknowledgeAlertCommand.
type AcknowledgeAlertHandler struct {
	snapshotRepo analysis.SnapshotRepository
	logger       *slog.Logger
}

// NewAcknowledgeAlertHandler creates a new AcknowledgeAlertHandler.
func NewAcknowledgeAlertHandler(snapshotRepo analysis.SnapshotRepository, logger *slog.Logger) *AcknowledgeAlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AcknowledgeAlertHandler{
		snapshotRepo: snapshotRepo,
		logger:       logger.With("handler", "acknowledge_alert"),
	}
}

// Handle executes the acknowledge alert command.
func (h *AcknowledgeAlertHandler) Handle(ctx context.Context, cmd AcknowledgeAlertCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	if err := h.snapshotRepo.AcknowledgeAlert(ctx, cmd.AlertID); err != nil {
		return fmt.Errorf("acknowledge_alert: %w", err)
	}

	h.logger.Info("alert acknowledged", "alert_id", cmd.AlertID)
	return nil
}
