// Package projections implements denormalized read models for the CQRS
// read side. Views are rebuilt from persisted snapshots after cohort scans
// and patched incrementally as analysis events arrive, so dashboard reads
// never touch the database.
package projections

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT RISK VIEW - Denormalized Read Model
// ══════════════════════════════════════════════════════════════════════════════

// CohortRiskView keeps the latest analysis result of every student, sorted
// worst-first, for the cohort dashboard. All reads return clones so callers
// can hold results without racing updates.
type CohortRiskView struct {
	mu sync.RWMutex

	// entries holds the latest entry per student ID.
	entries map[string]*CohortRiskEntry

	// sortedByRisk holds entries ordered worst-first: higher severity,
	// then lower percentage, then student ID for a stable order.
	sortedByRisk []*CohortRiskEntry

	// byLevel groups entries by risk level, each group worst-first.
	byLevel map[analysis.RiskLevel][]*CohortRiskEntry

	// metadata holds aggregate risk statistics.
	metadata CohortRiskMetadata

	// lastUpdated is the timestamp of the last change.
	lastUpdated time.Time

	// version is incremented on each update for cache invalidation.
	version int64
}

// CohortRiskEntry is one student's row in the view. It carries everything
// the dashboard shows without a second lookup.
type CohortRiskEntry struct {
	StudentID      string             `json:"student_id"`
	Percentage     float64            `json:"percentage"`
	RiskLevel      analysis.RiskLevel `json:"risk_level"`
	TrendDirection string             `json:"trend_direction"`
	TotalClasses   int                `json:"total_classes"`
	AbsentClasses  int                `json:"absent_classes"`
	LateClasses    int                `json:"late_classes"`
	AnalyzedAt     time.Time          `json:"analyzed_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// CohortRiskMetadata holds aggregate statistics about the cohort.
type CohortRiskMetadata struct {
	TotalStudents     int                        `json:"total_students"`
	Counts            map[analysis.RiskLevel]int `json:"counts"`
	AtRiskCount       int                        `json:"at_risk_count"`
	AveragePercentage float64                    `json:"average_percentage"`
	MedianPercentage  float64                    `json:"median_percentage"`
	WorstPercentage   float64                    `json:"worst_percentage"`
	LastRebuildAt     time.Time                  `json:"last_rebuild_at"`
	Version           int64                      `json:"version"`
}

// NewCohortRiskView creates a new empty view.
func NewCohortRiskView() *CohortRiskView {
	return &CohortRiskView{
		entries:      make(map[string]*CohortRiskEntry),
		sortedByRisk: make([]*CohortRiskEntry, 0),
		byLevel:      make(map[analysis.RiskLevel][]*CohortRiskEntry),
		metadata:     CohortRiskMetadata{Counts: make(map[analysis.RiskLevel]int)},
		lastUpdated:  time.Now().UTC(),
		version:      1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD OPERATIONS (Called after cohort scans)
// ══════════════════════════════════════════════════════════════════════════════

// RebuildFromSnapshots replaces the whole view with the given snapshots.
// When the slice holds several snapshots of one student, the last one wins.
func (v *CohortRiskView) RebuildFromSnapshots(snapshots []*analysis.RiskSnapshot) error {
	if snapshots == nil {
		return fmt.Errorf("projections: cannot rebuild from nil snapshots")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.entries = make(map[string]*CohortRiskEntry, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil {
			continue
		}
		v.entries[snap.StudentID] = entryFromSnapshot(snap)
	}

	v.rebuildIndexes()
	v.metadata.LastRebuildAt = time.Now().UTC()
	v.touch()

	return nil
}

// entryFromSnapshot converts a persisted snapshot to a view entry.
func entryFromSnapshot(snap *analysis.RiskSnapshot) *CohortRiskEntry {
	return &CohortRiskEntry{
		StudentID:      snap.StudentID,
		Percentage:     snap.Percentage,
		RiskLevel:      snap.RiskLevel,
		TrendDirection: snap.TrendDirection,
		TotalClasses:   snap.TotalClasses,
		AbsentClasses:  snap.AbsentClasses,
		LateClasses:    snap.LateClasses,
		AnalyzedAt:     snap.GeneratedAt,
		UpdatedAt:      time.Now().UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INCREMENTAL UPDATE OPERATIONS (Called on analysis events)
// ══════════════════════════════════════════════════════════════════════════════

// ApplyAnalysis upserts one student's entry after a completed analysis.
// Reordering happens only when the risk level or percentage moved.
func (v *CohortRiskView) ApplyAnalysis(entry *CohortRiskEntry) error {
	if entry == nil {
		return fmt.Errorf("projections: cannot apply nil entry")
	}
	if !entry.RiskLevel.IsValid() {
		return fmt.Errorf("projections: unknown risk level %q for student %s", entry.RiskLevel, entry.StudentID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entry.UpdatedAt = time.Now().UTC()
	old, exists := v.entries[entry.StudentID]
	v.entries[entry.StudentID] = entry

	if !exists || old.RiskLevel != entry.RiskLevel || old.Percentage != entry.Percentage {
		v.rebuildIndexes()
	}
	v.touch()

	return nil
}

// Remove drops a student from the view, e.g. after unenrollment.
// Removing an unknown student is a no-op.
func (v *CohortRiskView) Remove(studentID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.entries[studentID]; !exists {
		return
	}
	delete(v.entries, studentID)
	v.rebuildIndexes()
	v.touch()
}

// rebuildIndexes rebuilds the sorted list, level groups and metadata from
// the entries map. Caller holds the write lock.
func (v *CohortRiskView) rebuildIndexes() {
	v.sortedByRisk = make([]*CohortRiskEntry, 0, len(v.entries))
	v.byLevel = make(map[analysis.RiskLevel][]*CohortRiskEntry)

	for _, entry := range v.entries {
		v.sortedByRisk = append(v.sortedByRisk, entry)
	}
	sort.Slice(v.sortedByRisk, func(i, j int) bool {
		return worseThan(v.sortedByRisk[i], v.sortedByRisk[j])
	})

	for _, entry := range v.sortedByRisk {
		v.byLevel[entry.RiskLevel] = append(v.byLevel[entry.RiskLevel], entry)
	}

	v.recalculateMetadata()
}

// worseThan orders entries worst-first.
func worseThan(a, b *CohortRiskEntry) bool {
	if a.RiskLevel.Severity() != b.RiskLevel.Severity() {
		return a.RiskLevel.Severity() > b.RiskLevel.Severity()
	}
	if a.Percentage != b.Percentage {
		return a.Percentage < b.Percentage
	}
	return a.StudentID < b.StudentID
}

// recalculateMetadata recomputes the aggregates. Caller holds the write lock.
func (v *CohortRiskView) recalculateMetadata() {
	counts := make(map[analysis.RiskLevel]int)
	total := 0.0
	for _, entry := range v.entries {
		counts[entry.RiskLevel]++
		total += entry.Percentage
	}

	v.metadata.TotalStudents = len(v.entries)
	v.metadata.Counts = counts
	v.metadata.AtRiskCount = counts[analysis.RiskHigh] + counts[analysis.RiskCritical]

	v.metadata.AveragePercentage = 0
	v.metadata.MedianPercentage = 0
	v.metadata.WorstPercentage = 0
	if len(v.sortedByRisk) == 0 {
		return
	}

	v.metadata.AveragePercentage = total / float64(len(v.entries))

	// sortedByRisk is not percentage-ordered; the median needs its own sort.
	percentages := make([]float64, 0, len(v.entries))
	for _, entry := range v.entries {
		percentages = append(percentages, entry.Percentage)
	}
	sort.Float64s(percentages)
	mid := len(percentages) / 2
	if len(percentages)%2 == 0 {
		v.metadata.MedianPercentage = (percentages[mid-1] + percentages[mid]) / 2
	} else {
		v.metadata.MedianPercentage = percentages[mid]
	}
	v.metadata.WorstPercentage = percentages[0]
}

// touch bumps the version. Caller holds the write lock.
func (v *CohortRiskView) touch() {
	v.lastUpdated = time.Now().UTC()
	v.version++
	v.metadata.Version = v.version
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPERATIONS (Fast reads from denormalized data)
// ══════════════════════════════════════════════════════════════════════════════

// WorstStudents returns the N students most in need of attention.
func (v *CohortRiskView) WorstStudents(ctx context.Context, limit int) ([]*CohortRiskEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if limit <= 0 || limit > len(v.sortedByRisk) {
		limit = len(v.sortedByRisk)
	}

	result := make([]*CohortRiskEntry, limit)
	for i := 0; i < limit; i++ {
		result[i] = v.sortedByRisk[i].clone()
	}
	return result, nil
}

// ByLevel returns students at the given risk level, worst-first.
func (v *CohortRiskView) ByLevel(ctx context.Context, level analysis.RiskLevel, limit int) ([]*CohortRiskEntry, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("projections: unknown risk level %q", level)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	source := v.byLevel[level]
	if limit <= 0 || limit > len(source) {
		limit = len(source)
	}

	result := make([]*CohortRiskEntry, limit)
	for i := 0; i < limit; i++ {
		result[i] = source[i].clone()
	}
	return result, nil
}

// Page returns one page of the worst-first list.
func (v *CohortRiskView) Page(ctx context.Context, page, pageSize int) (*CohortRiskPage, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	total := len(v.sortedByRisk)
	totalPages := (total + pageSize - 1) / pageSize

	offset := (page - 1) * pageSize
	if offset >= total {
		return &CohortRiskPage{
			Entries:     make([]*CohortRiskEntry, 0),
			Page:        page,
			PageSize:    pageSize,
			TotalCount:  total,
			TotalPages:  totalPages,
			HasNext:     false,
			HasPrevious: page > 1,
		}, nil
	}

	end := offset + pageSize
	if end > total {
		end = total
	}

	entries := make([]*CohortRiskEntry, end-offset)
	for i := offset; i < end; i++ {
		entries[i-offset] = v.sortedByRisk[i].clone()
	}

	return &CohortRiskPage{
		Entries:     entries,
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}, nil
}

// ByStudentID returns one student's entry.
func (v *CohortRiskView) ByStudentID(ctx context.Context, studentID string) (*CohortRiskEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if entry, exists := v.entries[studentID]; exists {
		return entry.clone(), nil
	}
	return nil, fmt.Errorf("projections: student %s: %w", studentID, shared.ErrNotFound)
}

// Metadata returns the current aggregate statistics.
func (v *CohortRiskView) Metadata(ctx context.Context) CohortRiskMetadata {
	v.mu.RLock()
	defer v.mu.RUnlock()

	meta := v.metadata
	meta.Counts = make(map[analysis.RiskLevel]int, len(v.metadata.Counts))
	for level, n := range v.metadata.Counts {
		meta.Counts[level] = n
	}
	return meta
}

// Version returns the current version number.
func (v *CohortRiskView) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// LastUpdated returns when the view last changed.
func (v *CohortRiskView) LastUpdated() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastUpdated
}

// ══════════════════════════════════════════════════════════════════════════════
// SUPPORTING TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CohortRiskPage represents a paginated result.
type CohortRiskPage struct {
	Entries     []*CohortRiskEntry `json:"entries"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	TotalCount  int                `json:"total_count"`
	TotalPages  int                `json:"total_pages"`
	HasNext     bool               `json:"has_next"`
	HasPrevious bool               `json:"has_previous"`
}

// clone creates a copy of the entry to prevent data races.
func (e *CohortRiskEntry) clone() *CohortRiskEntry {
	if e == nil {
		return nil
	}
	entryCopy := *e
	return &entryCopy
}
