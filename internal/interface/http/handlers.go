package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/edupulse/attendance-insight/internal/application/command"
	"github.com/edupulse/attendance-insight/internal/application/query"
	"github.com/edupulse/attendance-insight/internal/domain/action"
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/attendance"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Attendance Insight API",
		"version":     "v1",
		"description": "REST API for the student attendance risk and intervention engine",
		"endpoints": map[string]string{
			"health":      "/health",
			"report":      "/api/v1/students/{id}/report",
			"daily_rates": "/api/v1/students/{id}/daily-rates",
			"actions":     "/api/v1/students/{id}/actions",
			"sync":        "/api/v1/students/{id}/sync",
			"import":      "/api/v1/records/import",
			"cohort":      "/api/v1/cohort/risk",
			"overview":    "/api/v1/cohort/overview",
			"alerts":      "/api/v1/alerts",
		},
		"documentation": "https://github.com/edupulse/attendance-insight",
	}

	s.writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			s.writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		s.writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			s.writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles the JSON metrics endpoint. Server counters are always
// present; the binaries add bus and scheduler counters via MetricsSources.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime_seconds": s.Uptime().Seconds(),
			"running":        s.IsRunning(),
		},
	}

	for _, source := range s.deps.MetricsSources {
		if source.Name == "" || source.Collect == nil {
			continue
		}
		metrics[source.Name] = source.Collect()
	}

	s.writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT ANALYSIS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStudentReport handles GET /api/v1/students/{id}/report
func (s *Server) handleGetStudentReport(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.GetStudentReportHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Report handler not configured")
		return
	}

	q := query.GetStudentReportQuery{
		StudentID:    studentID,
		ForceRefresh: getQueryParamBool(r, "refresh"),
	}

	result, err := s.deps.GetStudentReportHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleGetDailyRates handles GET /api/v1/students/{id}/daily-rates
func (s *Server) handleGetDailyRates(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.GetDailyRatesHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Daily rates handler not configured")
		return
	}

	q := query.GetDailyRatesQuery{
		StudentID: studentID,
		Days:      getQueryParamInt(r, "days", 0),
	}

	result, err := s.deps.GetDailyRatesHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// analyzeResponse is the HTTP shape of a completed analysis run.
type analyzeResponse struct {
	StudentID  string                  `json:"student_id"`
	SessionID  string                  `json:"session_id"`
	NewSession bool                    `json:"new_session"`
	Seeded     bool                    `json:"seeded"`
	Report     *analysis.StudentReport `json:"report"`
	Actions    []*action.ActionItem    `json:"actions"`
	AnalyzedAt time.Time               `json:"analyzed_at"`
}

// handleAnalyzeStudent handles POST /api/v1/students/{id}/analyze
func (s *Server) handleAnalyzeStudent(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.AnalyzeStudentHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Analyze handler not configured")
		return
	}

	cmd := command.AnalyzeStudentCommand{
		StudentID:     studentID,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.AnalyzeStudentHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, analyzeResponse{
		StudentID:  result.StudentID,
		SessionID:  result.SessionID,
		NewSession: result.NewSession,
		Seeded:     result.Seeded,
		Report:     result.Report,
		Actions:    result.Actions,
		AnalyzedAt: result.AnalyzedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION LEDGER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListActions handles GET /api/v1/students/{id}/actions
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.ListActionsHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Actions handler not configured")
		return
	}

	q := query.ListActionsQuery{
		StudentID: studentID,
		Status:    getQueryParam(r, "status", ""),
		Priority:  getQueryParam(r, "priority", ""),
		Type:      getQueryParam(r, "type", ""),
	}

	result, err := s.deps.ListActionsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleGetActionSummary handles GET /api/v1/students/{id}/actions/summary
func (s *Server) handleGetActionSummary(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.GetActionSummaryHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Summary handler not configured")
		return
	}

	q := query.GetActionSummaryQuery{StudentID: studentID}

	result, err := s.deps.GetActionSummaryHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// addActionRequest is the body of a manual action insert.
type addActionRequest struct {
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	DueDate     time.Time `json:"due_date"`
}

// actionItemResponse is the HTTP shape of a single ledger mutation.
type actionItemResponse struct {
	StudentID string             `json:"student_id"`
	SessionID string             `json:"session_id"`
	Item      *action.ActionItem `json:"item"`
}

// handleAddAction handles POST /api/v1/students/{id}/actions
func (s *Server) handleAddAction(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.AddActionHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Add action handler not configured")
		return
	}

	var req addActionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cmd := command.AddActionCommand{
		StudentID:   studentID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}

	result, err := s.deps.AddActionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, actionItemResponse{
		StudentID: result.StudentID,
		SessionID: result.SessionID,
		Item:      result.Item,
	})
}

// advanceActionRequest is the body of a status transition.
type advanceActionRequest struct {
	ToStatus string `json:"to_status"`
}

// advanceActionResponse is the HTTP shape of a completed transition.
type advanceActionResponse struct {
	StudentID  string             `json:"student_id"`
	SessionID  string             `json:"session_id"`
	Item       *action.ActionItem `json:"item"`
	FromStatus action.Status      `json:"from_status"`
	ToStatus   action.Status      `json:"to_status"`
	Forced     bool               `json:"forced"`
}

// handleAdvanceAction handles POST /api/v1/students/{id}/actions/{actionID}/advance
func (s *Server) handleAdvanceAction(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	actionID := r.PathValue("actionID")
	if studentID == "" || actionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID and action ID are required")
		return
	}

	if s.deps.AdvanceActionHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Advance handler not configured")
		return
	}

	var req advanceActionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cmd := command.AdvanceActionCommand{
		StudentID: studentID,
		ActionID:  actionID,
		ToStatus:  req.ToStatus,
		Force:     getQueryParamBool(r, "force"),
	}

	result, err := s.deps.AdvanceActionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, advanceActionResponse{
		StudentID:  result.StudentID,
		SessionID:  result.SessionID,
		Item:       result.Item,
		FromStatus: result.FromStatus,
		ToStatus:   result.ToStatus,
		Forced:     result.Forced,
	})
}

// appendNoteRequest is the body of a curator note.
type appendNoteRequest struct {
	Text string `json:"text"`
}

// handleAppendNote handles POST /api/v1/students/{id}/actions/{actionID}/notes
func (s *Server) handleAppendNote(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	actionID := r.PathValue("actionID")
	if studentID == "" || actionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID and action ID are required")
		return
	}

	if s.deps.AppendNoteHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Note handler not configured")
		return
	}

	var req appendNoteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cmd := command.AppendNoteCommand{
		StudentID: studentID,
		ActionID:  actionID,
		Text:      req.Text,
	}

	result, err := s.deps.AppendNoteHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, actionItemResponse{
		StudentID: result.StudentID,
		SessionID: result.SessionID,
		Item:      result.Item,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD IMPORT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// importRecordsRequest is the bulk import body.
type importRecordsRequest struct {
	Records []attendance.RawRecord `json:"records"`
}

// importRecordsResponse is the HTTP shape of a completed import.
type importRecordsResponse struct {
	Inserted int64 `json:"inserted"`
	Students int   `json:"students"`
	Received int   `json:"received"`
}

// handleImportRecords handles POST /api/v1/records/import
func (s *Server) handleImportRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.ImportRecordsHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Import handler not configured")
		return
	}

	var req importRecordsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cmd := command.ImportRecordsCommand{Records: req.Records}

	result, err := s.deps.ImportRecordsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, importRecordsResponse{
		Inserted: result.Inserted,
		Students: result.Students,
		Received: len(req.Records),
	})
}

// syncRecordsResponse is the HTTP shape of a completed per-student sync.
type syncRecordsResponse struct {
	RunID           string            `json:"run_id"`
	StudentsSynced  int               `json:"students_synced"`
	StudentsSkipped int               `json:"students_skipped"`
	RecordsImported int64             `json:"records_imported"`
	RecordsRejected int               `json:"records_rejected"`
	Failures        map[string]string `json:"failures,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        string            `json:"duration"`
}

// handleSyncStudent handles POST /api/v1/students/{id}/sync
// The handler stays nil when no SIS feed is configured.
func (s *Server) handleSyncStudent(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.SyncRecordsHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Record sync is not enabled")
		return
	}

	cmd := command.SyncRecordsCommand{
		StudentIDs:    []string{studentID},
		Force:         getQueryParamBool(r, "force"),
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.SyncRecordsHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// A failed fetch for the requested student is a client-visible outcome,
	// not a run error; it lands in the failures map with a 200.
	var failures map[string]string
	if len(result.Failed) > 0 {
		failures = make(map[string]string, len(result.Failed))
		for id, ferr := range result.Failed {
			failures[id] = ferr.Error()
		}
	}

	s.writeJSON(w, http.StatusOK, syncRecordsResponse{
		RunID:           result.RunID,
		StudentsSynced:  result.StudentsSynced,
		StudentsSkipped: result.StudentsSkipped,
		RecordsImported: result.RecordsImported,
		RecordsRejected: result.RecordsRejected,
		Failures:        failures,
		StartedAt:       result.StartedAt,
		Duration:        result.Duration.String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT & ALERT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCohortRisk handles GET /api/v1/cohort/risk
func (s *Server) handleGetCohortRisk(w http.ResponseWriter, r *http.Request) {
	// The handler stays nil when the cohort feature flag is off.
	if s.deps.GetCohortRiskHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Cohort summary is not enabled")
		return
	}

	q := query.GetCohortRiskQuery{
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", shared.DefaultPageSize),
		Level:    getQueryParam(r, "level", ""),
	}

	result, err := s.deps.GetCohortRiskHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	p := shared.NewPagination(q.Page, q.PageSize)
	meta := &ResponseMeta{
		TotalCount: result.TotalStudents,
		Page:       p.Page,
		PageSize:   p.PageSize,
		HasMore:    p.Page*p.PageSize < result.TotalStudents,
	}

	s.writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// handleGetCohortOverview handles GET /api/v1/cohort/overview
// Unlike /cohort/risk this reads the in-memory projection, so it costs no
// database round-trip and reflects the last analysis instantly.
func (s *Server) handleGetCohortOverview(w http.ResponseWriter, r *http.Request) {
	// The handler stays nil when the cohort feature flag is off.
	if s.deps.GetCohortOverviewHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Cohort overview is not enabled")
		return
	}

	q := query.GetCohortOverviewQuery{
		WorstLimit: getQueryParamInt(r, "limit", 0),
		Level:      getQueryParam(r, "level", ""),
	}

	result, err := s.deps.GetCohortOverviewHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleListAlerts handles GET /api/v1/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListAlertsHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Alerts handler not configured")
		return
	}

	q := query.ListAlertsQuery{
		Limit:              getQueryParamInt(r, "limit", 0),
		UnacknowledgedOnly: getQueryParamBool(r, "unacknowledged"),
	}

	result, err := s.deps.ListAlertsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleAcknowledgeAlert handles POST /api/v1/alerts/{alertID}/ack
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("alertID")
	if alertID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Alert ID is required")
		return
	}

	if s.deps.AcknowledgeAlertHandler == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Acknowledge handler not configured")
		return
	}

	cmd := command.AcknowledgeAlertCommand{AlertID: alertID}

	if err := s.deps.AcknowledgeAlertHandler.Handle(r.Context(), cmd); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"alert_id": alertID,
		"status":   "acknowledged",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON decodes the request body into dst. On malformed input it writes
// a 400 response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// writeDomainError translates a domain error into an HTTP status. Client
// errors carry the domain message verbatim; internal failures are logged and
// masked with a generic message.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err) || shared.IsUnknownStatus(err):
		s.writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		s.writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrExpired):
		s.writeJSONError(w, http.StatusGone, "session_expired", err.Error())
	case shared.IsAlreadyExists(err):
		s.writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsStateTransition(err):
		s.writeJSONError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		s.writeJSONError(w, http.StatusConflict, "invalid_state", err.Error())
	case shared.IsIntegrity(err):
		s.writeJSONError(w, http.StatusConflict, "data_conflict", err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", getRequestID(r.Context()),
			"error", err,
		)
		s.writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
