package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  Error  ", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", Output: &buf})

	log.Info("student analyzed", StudentID("stu-001"), RiskLevel("critical"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "student analyzed", entry["msg"])
	assert.Equal(t, "stu-001", entry["student_id"])
	assert.Equal(t, "critical", entry["risk_level"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "text", Output: &buf})

	log.Info("scan finished", Component("scheduler"))

	out := buf.String()
	assert.Contains(t, out, "msg=\"scan finished\"")
	assert.Contains(t, out, "component=scheduler")
}

func TestNew_LevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "json", Output: &buf})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestAttributeHelpers(t *testing.T) {
	assert.Equal(t, slog.String("subject_id", "math"), SubjectID("math"))
	assert.Equal(t, slog.String("session_id", "sess-1"), SessionID("sess-1"))
	assert.Equal(t, slog.String("action_id", "act-1"), ActionID("act-1"))
	assert.Equal(t, slog.String("operation", "import"), Operation("import"))
	assert.Equal(t, slog.Duration("latency", time.Second), Latency(time.Second))
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	assert.Equal(t, "error", Err(nil).Key)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	// Must not panic and must report everything as disabled-agnostic.
	log.Error("goes nowhere")
	assert.NotNil(t, log)
}
