package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/DrSkyle/layerline/pkg/builder"
	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/changes"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/partition"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/charmbracelet/lipgloss"
)

// Status is the run-level outcome.
type Status string

const (
	StatusSuccess        Status = "Success"
	StatusPartialFailure Status = "PartialFailure"
	StatusFailed         Status = "Failed"
)

// DeployedUnit records one successful unit deployment.
type DeployedUnit struct {
	UnitID       string `json:"unit_id"`
	Kind         string `json:"kind"`
	ContentHash  string `json:"content_hash"`
	LayerVersion int64  `json:"layer_version,omitempty"`
	Cached       bool   `json:"cached,omitempty"`
}

// FailedUnit records one failed unit with a stable machine-readable kind.
type FailedUnit struct {
	UnitID    string `json:"unit_id"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// Summary is the run report: written as JSON for CI and rendered for humans.
type Summary struct {
	Project     string    `json:"project"`
	Environment string    `json:"environment,omitempty"`
	Status      Status    `json:"status"`
	Base        string    `json:"base,omitempty"`
	Head        string    `json:"head,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	LayerVersion int64  `json:"layer_version,omitempty"`
	LayerARN     string `json:"layer_arn,omitempty"`

	Deployed []DeployedUnit `json:"deployed"`
	Failed   []FailedUnit   `json:"failed"`
	Skipped  []string       `json:"skipped"`
}

func (s *Summary) deriveStatus() Status {
	switch {
	case len(s.Failed) == 0:
		return StatusSuccess
	case len(s.Deployed) > 0:
		return StatusPartialFailure
	default:
		return StatusFailed
	}
}

func (s *Summary) sort() {
	sort.Slice(s.Deployed, func(i, j int) bool { return s.Deployed[i].UnitID < s.Deployed[j].UnitID })
	sort.Slice(s.Failed, func(i, j int) bool { return s.Failed[i].UnitID < s.Failed[j].UnitID })
	sort.Strings(s.Skipped)
}

// WriteJSON writes the summary into dir as summary.json.
func (s *Summary) WriteJSON(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "summary.json"), data, 0644)
}

// records converts the run outcome into deployment log entries.
func (s *Summary) records() []ledger.Record {
	var recs []ledger.Record
	for _, d := range s.Deployed {
		status := "deployed"
		if d.Kind == catalog.KindSharedLayer.String() {
			status = "published"
		}
		recs = append(recs, ledger.Record{
			UnitID:       d.UnitID,
			Project:      s.Project,
			Env:          s.Environment,
			ContentHash:  d.ContentHash,
			LayerVersion: d.LayerVersion,
			LayerARN:     s.LayerARN,
			Status:       status,
			Timestamp:    s.FinishedAt,
		})
	}
	for _, f := range s.Failed {
		recs = append(recs, ledger.Record{
			UnitID:    f.UnitID,
			Project:   s.Project,
			Env:       s.Environment,
			Status:    "failed:" + f.ErrorKind,
			Timestamp: s.FinishedAt,
		})
	}
	return recs
}

// Classify maps an error chain to the stable kind names used in summaries.
func Classify(err error) string {
	var (
		discErr     *catalog.DiscoveryError
		compErr     *changes.ComparisonError
		conflictErr *partition.ConflictError
		sizeErr     *builder.SizeLimitError
		closureErr  *builder.ClosureError
		publishErr  *platform.PublishError
	)

	switch {
	case errors.As(err, &discErr):
		return "DiscoveryError"
	case errors.As(err, &compErr):
		return "ComparisonError"
	case errors.As(err, &conflictErr):
		return "DependencyConflictError"
	case errors.As(err, &sizeErr):
		return "SizeLimitExceeded"
	case errors.As(err, &closureErr):
		return "ClosureCheckFailure"
	case errors.As(err, &publishErr):
		return "PublishFailure"
	default:
		return "InternalError"
	}
}

// Render formats the summary for terminal output.
func (s *Summary) Render() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99"))

	failStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF5555"))

	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	var b strings.Builder

	header := fmt.Sprintf("%s [%s]", s.Project, s.Status)
	if s.Environment != "" {
		header = fmt.Sprintf("%s/%s [%s]", s.Project, s.Environment, s.Status)
	}
	if s.Status == StatusSuccess {
		b.WriteString(titleStyle.Render(header))
	} else {
		b.WriteString(failStyle.Render(header))
	}
	b.WriteString("\n")

	if s.LayerARN != "" {
		b.WriteString(fmt.Sprintf("  layer   v%d  %s\n", s.LayerVersion, dimStyle.Render(s.LayerARN)))
	}
	for _, d := range s.Deployed {
		note := ""
		if d.Cached {
			note = " (cached artifact)"
		}
		b.WriteString(fmt.Sprintf("  ok      %-24s %s%s\n", d.UnitID, shortHash(d.ContentHash), note))
	}
	for _, f := range s.Failed {
		b.WriteString(failStyle.Render(fmt.Sprintf("  fail    %-24s %s: %s", f.UnitID, f.ErrorKind, f.Message)))
		b.WriteString("\n")
	}
	for _, id := range s.Skipped {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  skip    %-24s unchanged", id)))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d deployed, %d failed, %d skipped in %s",
		len(s.Deployed), len(s.Failed), len(s.Skipped),
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))))
	b.WriteString("\n")
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
