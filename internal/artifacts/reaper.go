// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const reapInterval = 1 * time.Hour

// Reaper periodically deletes artifact snapshot directories older than a
// retention window, and trims the oldest beyond a count cap.
type Reaper struct {
	root          string
	retentionDays int
	maxCount      int
}

// NewReaper returns a Reaper bound to cfg. A zero RetentionDays and zero
// MaxCount both disable their respective checks.
func NewReaper(cfg Config) *Reaper {
	root := cfg.Root
	if root == "" {
		root = "artifacts"
	}
	return &Reaper{root: root, retentionDays: cfg.RetentionDays, maxCount: cfg.MaxCount}
}

// Run sweeps immediately, then every hour until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if err := r.Reap(); err != nil {
		log.Printf("artifacts: reap error: %v", err)
	}

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reap(); err != nil {
				log.Printf("artifacts: reap error: %v", err)
			}
		}
	}
}

type snapshotDir struct {
	path    string
	modTime time.Time
}

// Reap deletes expired and excess snapshot directories. Each entry under
// root (a snapshot dir or its compressed .tar.gz sibling) is one unit.
func (r *Reaper) Reap() error {
	if r.retentionDays <= 0 && r.maxCount <= 0 {
		return nil
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snapshots []snapshotDir
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshotDir{path: filepath.Join(r.root, e.Name()), modTime: info.ModTime()})
	}

	if r.retentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
		kept := snapshots[:0]
		for _, s := range snapshots {
			if s.modTime.Before(cutoff) {
				os.RemoveAll(s.path)
				continue
			}
			kept = append(kept, s)
		}
		snapshots = kept
	}

	if r.maxCount > 0 && len(snapshots) > r.maxCount {
		sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].modTime.After(snapshots[j].modTime) })
		for _, s := range snapshots[r.maxCount:] {
			os.RemoveAll(s.path)
		}
	}

	return nil
}
