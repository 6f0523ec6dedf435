// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"sort"
	"sync"
	"time"
)

// HistoryConfig configures in-memory retention.
type HistoryConfig struct {
	MaxRecords int
	MaxAge     time.Duration
}

// History keeps a bounded, queryable in-memory window of recent records.
// The durable copy lives in the append-only file; this is for fast
// dashboard-style queries without reading the file back.
type History struct {
	mu      sync.RWMutex
	records []Record
	max     int
	maxAge  time.Duration
	matcher *PatternMatcher
}

// NewHistory creates a bounded history.
func NewHistory(cfg HistoryConfig) *History {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 10000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	return &History{
		records: make([]Record, 0),
		max:     cfg.MaxRecords,
		maxAge:  cfg.MaxAge,
		matcher: NewPatternMatcher(),
	}
}

// Add stores rec, trimming the oldest entries past MaxRecords.
func (h *History) Add(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
}

// Query returns records matching filter, oldest first.
func (h *History) Query(filter Filter) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Record, 0)
	for _, rec := range h.records {
		if h.matches(rec, filter) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}

func (h *History) matches(rec Record, filter Filter) bool {
	if len(filter.Types) > 0 {
		matched := false
		for _, pattern := range filter.Types {
			if h.matcher.Match(rec.Type, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if filter.InstanceID != "" && rec.InstanceID != filter.InstanceID {
		return false
	}
	if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && rec.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// Prune drops records older than MaxAge.
func (h *History) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := time.Now().Add(-h.maxAge)
	filtered := make([]Record, 0, len(h.records))
	for _, rec := range h.records {
		if rec.Timestamp.After(cutoff) {
			filtered = append(filtered, rec)
		}
	}
	h.records = filtered
}
