// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package artifacts collects atomic, timestamped snapshots of a team's
// workspaces, transcripts, and metadata.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"madrox/internal/apierr"
	"madrox/internal/instance"
)

// PaneCapturer snapshots an instance's current pane transcript.
type PaneCapturer interface {
	CapturePane(ctx context.Context, instanceID string) (string, error)
}

// Config controls where and how artifacts are written.
type Config struct {
	Root            string   // artifacts_root
	IncludePatterns []string // glob patterns; nil/empty means include everything
	ExcludePatterns []string
	RetentionDays   int  // 0 disables the age-based reaper
	MaxCount        int  // 0 disables the count-based reaper
	Compress        bool // gzip completed snapshots into a .tar.gz sibling
}

// Collector implements collect_team_artifacts.
type Collector struct {
	registry *instance.Registry
	panes    PaneCapturer
	cfg      Config
}

// New returns a Collector. panes may be nil, in which case output.log is
// omitted for every member instead of failing the whole collection.
func New(registry *instance.Registry, panes PaneCapturer, cfg Config) *Collector {
	if cfg.Root == "" {
		cfg.Root = "artifacts"
	}
	return &Collector{registry: registry, panes: panes, cfg: cfg}
}

// InstanceResult is one member's outcome within a collection.
type InstanceResult struct {
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// ExecutionSummary aggregates totals across a collection.
type ExecutionSummary struct {
	InstanceCount int     `json:"instance_count"`
	TokensUsed    int64   `json:"tokens_used"`
	Cost          float64 `json:"cost"`
	WallClockMS   int64   `json:"wall_clock_ms"`
	AllCompleted  bool    `json:"all_completed"`
	Errors        int     `json:"errors"`
}

// Result is the top-level metadata.json content, also returned to callers.
type Result struct {
	TeamSessionID    string           `json:"team_session_id"`
	Dir              string           `json:"dir"`
	CollectedAt      time.Time        `json:"collected_at"`
	Instances        []InstanceResult `json:"instances"`
	ExecutionSummary ExecutionSummary `json:"execution_summary"`
}

// CollectTeamArtifacts snapshots every instance (live or terminated) whose
// team_session_id matches into a freshly created, uniquely named directory
// under cfg.Root. A single member's failure produces a status=error entry
// for that member without aborting the rest.
func (c *Collector) CollectTeamArtifacts(ctx context.Context, teamSessionID string) (*Result, error) {
	if teamSessionID == "" {
		return nil, apierr.Newf(apierr.KindEmptyTeamID, "team_session_id must not be empty")
	}

	members := c.membersOf(teamSessionID)
	if len(members) == 0 {
		return nil, apierr.Newf(apierr.KindNoMembers, fmt.Sprintf("no instances found for team %q", teamSessionID))
	}

	start := time.Now()
	dir, err := createSnapshotDir(c.cfg.Root, teamSessionID, start)
	if err != nil {
		return nil, apierr.Newf(apierr.KindIO, err.Error())
	}

	instancesDir := filepath.Join(dir, "instances")
	if err := os.MkdirAll(instancesDir, 0o755); err != nil {
		return nil, apierr.Newf(apierr.KindIO, err.Error())
	}

	results := make([]InstanceResult, len(members))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var tokens int64
	var cost float64
	errCount := 0

	for i, rec := range members {
		i, rec := i, rec
		g.Go(func() error {
			res := c.collectOne(gctx, instancesDir, rec)

			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			tokens += rec.Counters.TokensUsed
			cost += rec.Counters.Cost
			if res.Status == "error" {
				errCount++
			}
			return nil // partial failure is tracked per-result, never aborts the group
		})
	}
	_ = g.Wait()

	summary := ExecutionSummary{
		InstanceCount: len(members),
		TokensUsed:    tokens,
		Cost:          cost,
		WallClockMS:   time.Since(start).Milliseconds(),
		AllCompleted:  errCount == 0,
		Errors:        errCount,
	}

	result := &Result{
		TeamSessionID:    teamSessionID,
		Dir:              dir,
		CollectedAt:      start,
		Instances:        results,
		ExecutionSummary: summary,
	}

	if err := writeTopLevel(dir, result); err != nil {
		return nil, apierr.Newf(apierr.KindIO, err.Error())
	}

	if c.cfg.Compress {
		if err := compressDir(dir); err != nil {
			return nil, apierr.Newf(apierr.KindIO, fmt.Sprintf("compress %s: %v", dir, err))
		}
	}

	return result, nil
}

func (c *Collector) membersOf(teamSessionID string) []instance.Record {
	var members []instance.Record
	for _, rec := range c.registry.All() {
		if rec.TeamSessionID == teamSessionID {
			members = append(members, rec)
		}
	}
	return members
}

// collectOne writes one member's metadata.json, output.log, and workspace/
// mirror. It never returns an error; failures are captured in the result.
func (c *Collector) collectOne(ctx context.Context, instancesDir string, rec instance.Record) InstanceResult {
	res := InstanceResult{InstanceID: rec.ID, Name: rec.Name, Status: "ok"}

	memberDir := filepath.Join(instancesDir, rec.ID)
	if err := os.MkdirAll(memberDir, 0o755); err != nil {
		res.Status, res.Error = "error", err.Error()
		return res
	}

	metaPath := filepath.Join(memberDir, "metadata.json")
	metaBytes, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		res.Status, res.Error = "error", err.Error()
		return res
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		res.Status, res.Error = "error", err.Error()
		return res
	}

	if c.panes != nil {
		pane, err := c.panes.CapturePane(ctx, rec.ID)
		if err != nil {
			res.Status, res.Error = "error", fmt.Sprintf("pane capture: %v", err)
			return res
		}
		if err := os.WriteFile(filepath.Join(memberDir, "output.log"), []byte(pane), 0o644); err != nil {
			res.Status, res.Error = "error", err.Error()
			return res
		}
	}

	if rec.WorkspacePath != "" {
		dst := filepath.Join(memberDir, "workspace")
		if err := copyTree(rec.WorkspacePath, dst, c.cfg.IncludePatterns, c.cfg.ExcludePatterns); err != nil {
			res.Status, res.Error = "error", fmt.Sprintf("workspace copy: %v", err)
			return res
		}
	}

	return res
}

// createSnapshotDir creates root/{timestamp}-{team_id}/ atomically, adding a
// numeric suffix on collision rather than overwriting.
func createSnapshotDir(root, teamID string, at time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts root: %w", err)
	}
	base := fmt.Sprintf("%s-%s", at.Format("2006-01-02_15-04-05"), sanitizeName(teamID))
	dir := filepath.Join(root, base)
	for n := 0; ; n++ {
		candidate := dir
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d", dir, n)
		}
		if err := os.Mkdir(candidate, 0o755); err == nil {
			return candidate, nil
		} else if !os.IsExist(err) {
			return "", fmt.Errorf("create snapshot dir: %w", err)
		}
	}
}

func sanitizeName(name string) string {
	r := make([]rune, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			r = append(r, c)
		default:
			r = append(r, '_')
		}
	}
	return string(r)
}

func writeTopLevel(dir string, result *Result) error {
	metaBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "summary.md"), []byte(renderSummary(result)), 0o644)
}

func renderSummary(result *Result) string {
	s := result.ExecutionSummary
	out := fmt.Sprintf("# Team artifact snapshot: %s\n\n", result.TeamSessionID)
	out += fmt.Sprintf("Collected at %s, %d instance(s), %v wall clock.\n\n",
		result.CollectedAt.Format(time.RFC3339), s.InstanceCount, time.Duration(s.WallClockMS)*time.Millisecond)
	out += fmt.Sprintf("Tokens used: %d. Cost: %.4f. Errors: %d. All completed: %v\n\n", s.TokensUsed, s.Cost, s.Errors, s.AllCompleted)
	out += "| Instance | Name | Status | Error |\n|---|---|---|---|\n"
	for _, r := range result.Instances {
		out += fmt.Sprintf("| %s | %s | %s | %s |\n", r.InstanceID, r.Name, r.Status, r.Error)
	}
	return out
}
