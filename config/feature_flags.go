package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles for the attendance engine.
// Supports gradual per-student rollout and per-student overrides so a
// school can pilot a behavior on part of the cohort before enabling it
// for everyone.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID string
}

// Predefined feature flag names.
const (
	// FeatureRedisCaching gates the Redis report and cohort caches.
	// Off means every read recomputes from Postgres.
	FeatureRedisCaching = "cache.redis"

	// FeatureCohortScan gates the nightly cohort scan job.
	FeatureCohortScan = "scan.cohort"

	// FeatureAutoSeeding gates generator seeding of fresh analysis
	// sessions. Off means curators fill the ledger by hand.
	FeatureAutoSeeding = "actions.auto_seed"

	// FeatureCriticalAlerts gates persisted alerts on critical risk.
	FeatureCriticalAlerts = "alerts.critical"

	// FeatureCohortEndpoint gates the cohort summary API endpoint.
	FeatureCohortEndpoint = "api.cohort"

	// FeatureSISSync gates record imports from the SIS feed, both the
	// periodic job and the manual sync endpoint.
	FeatureSISSync = "sync.sis"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
// Everything the engine core needs ships enabled; schools switch
// pieces off per deployment, not the other way round.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRedisCaching] = &Feature{
		Name:           FeatureRedisCaching,
		Description:    "Cache reports and cohort summaries in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCohortScan] = &Feature{
		Name:           FeatureCohortScan,
		Description:    "Nightly scan of every active student",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAutoSeeding] = &Feature{
		Name:           FeatureAutoSeeding,
		Description:    "Seed fresh sessions with generated actions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCriticalAlerts] = &Feature{
		Name:           FeatureCriticalAlerts,
		Description:    "Persist alerts when risk turns critical",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCohortEndpoint] = &Feature{
		Name:           FeatureCohortEndpoint,
		Description:    "Expose the cohort risk summary endpoint",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureSISSync] = &Feature{
		Name:           FeatureSISSync,
		Description:    "Import attendance records from the SIS feed",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_SCAN_COHORT=false
// Example: FEATURE_ACTIONS_AUTO_SEED=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "actions.auto_seed" -> "FEATURE_ACTIONS_AUTO_SEED"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil context evaluates the flag globally, which only partial
// rollouts distinguish from the per-student answer.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check student overrides first
	if ctx != nil && ctx.StudentID != "" {
		if overrides, ok := ff.studentOverrides[ctx.StudentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if !feature.Enabled {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return ff.isInRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func (ff *FeatureFlags) isInRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetStudentOverride sets a feature override for a specific student.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.studentOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// String returns a one-line summary for startup logging, sorted by name.
// Example: "actions.auto_seed=on api.cohort=on scan.cohort=off(0%) ..."
func (ff *FeatureFlags) String() string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		f := ff.features[name]
		switch {
		case f.Enabled && f.RolloutPercent == 100:
			parts = append(parts, name+"=on")
		case !f.Enabled:
			parts = append(parts, name+"=off")
		default:
			parts = append(parts, fmt.Sprintf("%s=on(%d%%)", name, f.RolloutPercent))
		}
	}
	return strings.Join(parts, " ")
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
