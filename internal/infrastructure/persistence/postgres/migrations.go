package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ATTENDANCE RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create attendance records table
-- Version: 001

-- Raw attendance records as imported from the school information system.
-- The engine treats this table as read-only input: rows arrive through the
-- bulk import endpoint, derived data lives in its own tables.
CREATE TABLE IF NOT EXISTS attendance_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL,
    subject_id VARCHAR(64) NOT NULL,
    subject_name VARCHAR(255) NOT NULL DEFAULT '',
    subject_code VARCHAR(32) NOT NULL DEFAULT '',
    class_date DATE NOT NULL,
    status VARCHAR(10) NOT NULL,
    imported_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Source invariant: at most one record per student, subject and date.
    -- The normalizer rejects duplicates in memory; this constraint rejects
    -- them at the import boundary.
    UNIQUE(student_id, subject_id, class_date),
    CONSTRAINT valid_attendance_status CHECK (status IN ('present', 'absent', 'late', 'excused'))
);

-- Indexes for per-student analysis and the cohort scan
CREATE INDEX IF NOT EXISTS idx_attendance_records_student ON attendance_records(student_id);
CREATE INDEX IF NOT EXISTS idx_attendance_records_student_date ON attendance_records(student_id, class_date);
CREATE INDEX IF NOT EXISTS idx_attendance_records_date ON attendance_records(class_date DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS attendance_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE RISK ANALYSIS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create risk analysis tables
-- Version: 002
-- Purpose: Persist analysis output - snapshot history, scan runs, alerts

-- Risk snapshots: one row per completed analysis of a student.
-- The cohort dashboard reads the latest snapshot per student.
CREATE TABLE IF NOT EXISTS risk_snapshots (
    id UUID PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL,
    percentage DECIMAL(5,2) NOT NULL DEFAULT 0,
    risk_level VARCHAR(10) NOT NULL,
    total_classes INTEGER NOT NULL DEFAULT 0,
    attended_classes INTEGER NOT NULL DEFAULT 0,
    absent_classes INTEGER NOT NULL DEFAULT 0,
    late_classes INTEGER NOT NULL DEFAULT 0,
    excused_classes INTEGER NOT NULL DEFAULT 0,
    trend_direction VARCHAR(10) NOT NULL DEFAULT 'stable',
    trend_change DECIMAL(6,2) NOT NULL DEFAULT 0,
    generated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_risk_level CHECK (risk_level IN ('low', 'medium', 'high', 'critical')),
    CONSTRAINT valid_trend_direction CHECK (trend_direction IN ('improving', 'stable', 'declining')),
    CONSTRAINT valid_percentage CHECK (percentage >= 0 AND percentage <= 100)
);

CREATE INDEX IF NOT EXISTS idx_risk_snapshots_student_at ON risk_snapshots(student_id, generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_snapshots_generated_at ON risk_snapshots(generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_snapshots_level ON risk_snapshots(risk_level);

-- Scan runs: bookkeeping for the background cohort scan.
CREATE TABLE IF NOT EXISTS scan_runs (
    id UUID PRIMARY KEY,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,
    status VARCHAR(10) NOT NULL DEFAULT 'running',
    students_scanned INTEGER NOT NULL DEFAULT 0,
    failed_students INTEGER NOT NULL DEFAULT 0,
    critical_count INTEGER NOT NULL DEFAULT 0,
    high_count INTEGER NOT NULL DEFAULT 0,
    medium_count INTEGER NOT NULL DEFAULT 0,
    low_count INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_run_status CHECK (status IN ('running', 'completed', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs(started_at DESC);

-- Risk alerts: critical-risk notifications for curators.
CREATE TABLE IF NOT EXISTS risk_alerts (
    id UUID PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL,
    risk_level VARCHAR(10) NOT NULL,
    percentage DECIMAL(5,2) NOT NULL DEFAULT 0,
    message TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
    acknowledged_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_alert_level CHECK (risk_level IN ('low', 'medium', 'high', 'critical'))
);

CREATE INDEX IF NOT EXISTS idx_risk_alerts_created_at ON risk_alerts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_student ON risk_alerts(student_id);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_open ON risk_alerts(created_at DESC) WHERE acknowledged = FALSE;
`

const migration002Down = `
DROP TABLE IF EXISTS risk_alerts;
DROP TABLE IF EXISTS scan_runs;
DROP TABLE IF EXISTS risk_snapshots;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ACTION ITEMS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create action items table
-- Version: 003
-- Purpose: Durable copy of session action ledgers

-- Action items: one row per intervention step. The live ledger is held in
-- the session; this table keeps history across sessions and restarts.
-- Curator notes are stored as a JSONB array in chronological order.
CREATE TABLE IF NOT EXISTS action_items (
    id VARCHAR(64) PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL,
    student_id VARCHAR(64) NOT NULL,
    action_type VARCHAR(30) NOT NULL,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    priority VARCHAR(10) NOT NULL,
    status VARCHAR(15) NOT NULL DEFAULT 'pending',
    due_date TIMESTAMP WITH TIME ZONE NOT NULL,
    auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
    notes JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_action_type CHECK (action_type IN (
        'contact_student', 'contact_parent', 'counseling',
        'academic_warning', 'monitoring', 'intervention'
    )),
    CONSTRAINT valid_action_priority CHECK (priority IN ('low', 'medium', 'high', 'critical')),
    CONSTRAINT valid_action_status CHECK (status IN ('pending', 'in_progress', 'completed'))
);

CREATE INDEX IF NOT EXISTS idx_action_items_session ON action_items(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_action_items_student ON action_items(student_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_action_items_open ON action_items(due_date) WHERE status != 'completed';
`

const migration003Down = `
DROP TABLE IF EXISTS action_items;
`
