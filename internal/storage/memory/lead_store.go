// Package memory provides an in-memory lead store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

type leadKey struct {
	url string
	day time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// LeadStore keeps leads in a map keyed by (url, UTC day).
type LeadStore struct {
	mu     sync.RWMutex
	clock  analysis.Clock
	nextID int64
	leads  map[leadKey]analysis.LeadRecord
	down   error
}

// NewLeadStore constructs a LeadStore. A nil clock uses the wall clock.
func NewLeadStore(clock analysis.Clock) *LeadStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &LeadStore{
		clock: clock,
		leads: make(map[leadKey]analysis.LeadRecord),
	}
}

// SetUnavailable makes every operation behave as if the backing database
// were unreachable. Passing nil restores the store.
func (s *LeadStore) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = err
}

// Save inserts or replaces the lead for the record's (url, day).
func (s *LeadStore) Save(_ context.Context, record analysis.LeadRecord) *analysis.SavedRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down != nil {
		metrics.ObserveLeadSave(metrics.LeadSaveError)
		return nil
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now()
	}
	if record.AnalyzedAt.IsZero() {
		record.AnalyzedAt = record.CreatedAt
	}
	key := leadKey{url: record.URL, day: analysis.LeadDay(record.CreatedAt)}
	if existing, ok := s.leads[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		s.leads[key] = cloneLead(record)
		metrics.ObserveLeadSave(metrics.LeadSaveUpdated)
		return &analysis.SavedRef{ID: record.ID, Inserted: false}
	}
	s.nextID++
	record.ID = s.nextID
	s.leads[key] = cloneLead(record)
	metrics.ObserveLeadSave(metrics.LeadSaveInserted)
	return &analysis.SavedRef{ID: record.ID, Inserted: true}
}

// Stats aggregates stored leads relative to the store clock.
func (s *LeadStore) Stats(_ context.Context) analysis.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := analysis.Stats{Recent: []analysis.LeadRecord{}}
	if s.down != nil || len(s.leads) == 0 {
		return stats
	}
	now := s.clock.Now()
	domains := make(map[string]struct{})
	var scoreSum int64
	for _, lead := range s.leads {
		stats.Total++
		scoreSum += int64(lead.GrowthScore)
		domains[strings.ToLower(lead.Domain)] = struct{}{}
		switch {
		case lead.GrowthScore >= analysis.ExcellentThreshold:
			stats.Excellent++
		case lead.GrowthScore >= analysis.GoodThreshold:
			stats.Good++
		case lead.GrowthScore < analysis.PoorThreshold:
			stats.Poor++
		}
		age := now.Sub(lead.CreatedAt)
		if age <= 24*time.Hour {
			stats.Last24h++
		}
		if age <= 7*24*time.Hour {
			stats.Last7d++
		}
	}
	stats.UniqueDomains = int64(len(domains))
	stats.AverageScore = float64(scoreSum) / float64(stats.Total)
	recent := s.sortedLocked()
	if len(recent) > analysis.RecentLimit {
		recent = recent[:analysis.RecentLimit]
	}
	stats.Recent = recent
	return stats
}

// List returns every lead, newest first.
func (s *LeadStore) List(_ context.Context) ([]analysis.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down != nil {
		return nil, s.down
	}
	return s.sortedLocked(), nil
}

// Ping reports the simulated availability.
func (s *LeadStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down != nil {
		return errors.Join(errors.New("lead store unavailable"), s.down)
	}
	return nil
}

// Close is a no-op.
func (s *LeadStore) Close() {}

func (s *LeadStore) sortedLocked() []analysis.LeadRecord {
	out := make([]analysis.LeadRecord, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, cloneLead(lead))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneLead(lead analysis.LeadRecord) analysis.LeadRecord {
	lead.Categories = append([]byte(nil), lead.Categories...)
	lead.Recommendations = append([]byte(nil), lead.Recommendations...)
	return lead
}
