// Package defect holds the immutable per-defect view the analyzers consume:
// identity, classification, and the computed state timeline.
package defect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bouncer/internal/timeline"
)

// Required classification fields. A defect missing any of these is tracked
// as invalid so the triage owner can be nudged to fill them in.
const (
	FieldComponent   = "component"
	FieldEnvironment = "environment"
	FieldPriority    = "priority"
	FieldSeverity    = "severity"
)

// Record is one issue-tracker defect with its reconstructed timeline.
// Built once by the jira package (or loaded from a snapshot) and treated as
// read-only afterwards.
type Record struct {
	ID          string   `json:"id"`
	Project     string   `json:"project"`
	Pillar      string   `json:"pillar"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Severity    string   `json:"severity"`
	Environment string   `json:"environment"`
	Detected    string   `json:"detected,omitempty"`
	Components  []string `json:"components"`
	FixVersions []string `json:"fix_versions,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Reporter    string   `json:"reporter"`
	Source      string   `json:"source"`

	Created  time.Time         `json:"created"`
	Timeline timeline.Timeline `json:"timeline"`
}

// Actuals returns the raw state history.
func (r *Record) Actuals() []string { return r.Timeline.Actuals() }

// Reduced returns the canonical state history with consecutive duplicates
// collapsed.
func (r *Record) Reduced() []string { return r.Timeline.Reduced() }

// LatestEvent returns the timestamp of the most recent state event.
func (r *Record) LatestEvent() (time.Time, bool) { return r.Timeline.Latest() }

// ComponentList joins the component names for display.
func (r *Record) ComponentList() string { return strings.Join(r.Components, ", ") }

// MissingFields lists the required classification fields that are blank.
func (r *Record) MissingFields() []string {
	var missing []string
	if len(r.Components) == 0 {
		missing = append(missing, FieldComponent)
	}
	if strings.TrimSpace(r.Environment) == "" {
		missing = append(missing, FieldEnvironment)
	}
	if strings.TrimSpace(r.Priority) == "" {
		missing = append(missing, FieldPriority)
	}
	if strings.TrimSpace(r.Severity) == "" {
		missing = append(missing, FieldSeverity)
	}
	return missing
}

// IsValid reports whether every required classification field is present.
func (r *Record) IsValid() bool { return len(r.MissingFields()) == 0 }

// Details renders the per-defect block used in the violation section of the
// bounce report.
func (r *Record) Details() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Id: %s\n", r.ID)
	fmt.Fprintf(&b, "    Pillar: %s\n", r.Pillar)
	fmt.Fprintf(&b, "    Project: %s\n", strings.ToUpper(r.Project))
	fmt.Fprintf(&b, "    Link: %s\n", r.Link)
	fmt.Fprintf(&b, "    Title: %q\n", r.Title)
	fmt.Fprintf(&b, "    Status: %s\n", r.Status)
	fmt.Fprintf(&b, "    Created: %s\n", r.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "    Valid Defect? %t\n", r.IsValid())
	fmt.Fprintf(&b, "    Component(s): %s\n", r.ComponentList())
	fmt.Fprintf(&b, "    Priority: %s\n", r.Priority)
	fmt.Fprintf(&b, "    Severity: %s\n", r.Severity)
	fmt.Fprintf(&b, "    When Detected: %s\n", r.Detected)
	fmt.Fprintf(&b, "    States:\n")
	for _, ev := range r.Timeline {
		fmt.Fprintf(&b, "        %-25s (%s):  %s\n", ev.Actual, ev.Canonical, ev.At.Format("2006-01-02 15:04:05.000"))
	}
	fmt.Fprintf(&b, "    Concise Summary: %s", FormatStates(r.Reduced()))
	return b.String()
}

// FormatStates renders a reduced history for tables and logs; unknown states
// show as "?".
func FormatStates(states []string) string {
	parts := make([]string, len(states))
	for i, s := range states {
		if s == "" {
			s = "?"
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, " > ") + "]"
}

// Finding is one defect with missing required fields.
type Finding struct {
	Defect  *Record
	Missing []string
}

// Validate scans records for blank required fields, grouping findings by
// reporter so the issues report reads as a per-person worklist. Reporters
// are sorted; each reporter's findings keep record order.
func Validate(records []*Record) map[string][]Finding {
	findings := make(map[string][]Finding)
	for _, rec := range records {
		missing := rec.MissingFields()
		if len(missing) == 0 {
			continue
		}
		findings[rec.Reporter] = append(findings[rec.Reporter], Finding{Defect: rec, Missing: missing})
	}
	if len(findings) == 0 {
		return nil
	}
	return findings
}

// Reporters returns the sorted reporter keys of a findings map.
func Reporters(findings map[string][]Finding) []string {
	names := make([]string, 0, len(findings))
	for name := range findings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
