// Package report renders bounce analysis results as human-readable text and
// writes the per-pillar report files.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"bouncer/internal/bounce"
	"bouncer/internal/defect"
)

// RenderBounce builds the full text report for one pillar: the note header,
// per-project statistics, the bounced-defect table, and the violation
// details.
func RenderBounce(pillar string, res *bounce.Result, interval bounce.Interval, slaLimit int, mode Mode) string {
	var b strings.Builder

	b.WriteString("NOTE: All defects in tally have been updated within the specified range " +
		"and have been closed at least once.\n\n")
	fmt.Fprintf(&b, "SLA Limit: %d bounces.\n\n", slaLimit)
	fmt.Fprintf(&b, "Stats for %s - %s:\n",
		interval.Start.Format("2006/01/02"), interval.End.Format("2006/01/02"))

	for _, project := range res.Projects() {
		s := res.Summaries[project]
		fmt.Fprintf(&b, "\t- %-8s   Defects: %3d  Bounced: %2d  Violations: %2d    Percent Bounced Back: %4.1f%%\n",
			strings.ToUpper(project), s.Total, s.Bounced, len(s.Violations), s.Percent())
	}

	b.WriteString("\n\n")
	b.WriteString(bounceTable(pillar, res, slaLimit, mode))
	b.WriteString("\n\nVIOLATION DETAILS:\n")

	violations := res.Violations()
	if len(violations) == 0 {
		b.WriteString("None\n")
		return b.String()
	}
	for _, d := range violations {
		b.WriteString(d.Details())
		b.WriteString("\n\n")
	}
	return b.String()
}

// bounceTable tabulates the bounced defects per project; projects without
// bounce backs still get a row so their health is visible at a glance.
func bounceTable(pillar string, res *bounce.Result, slaLimit int, mode Mode) string {
	tbl := NewTable(mode)
	tbl.Header("Pillar", "Project", "Defect ID", "Violation", "Transition History")
	tbl.Columns(ColumnConfig{Number: 5, Align: AlignLeft})

	for _, project := range res.Projects() {
		bounced := res.Bounced[project]
		if len(bounced) == 0 {
			tbl.Row(pillar, strings.ToUpper(project), "No bounce backs", "", "")
			continue
		}

		ids := make([]string, 0, len(bounced))
		for id := range bounced {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			d := bounced[id]
			mark := ""
			if bounce.IsViolation(d.Reduced(), slaLimit) {
				mark = "*"
			}
			tbl.Row(pillar, strings.ToUpper(project), id, mark, defect.FormatStates(d.Reduced()))
		}
	}
	return tbl.String()
}

// RenderIssues builds the missing-required-field report grouped by reporter.
func RenderIssues(findings map[string][]defect.Finding) string {
	var b strings.Builder
	for _, reporter := range defect.Reporters(findings) {
		fmt.Fprintf(&b, "Reporter: %s\n", reporter)
		for _, f := range findings[reporter] {
			fmt.Fprintf(&b, "\t%s: %s\n", f.Defect.ID, strings.Join(f.Missing, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Filename derives the per-pillar report file name from the interval, e.g.
// "defects.platform.20240301.20240331.bounce.report".
func Filename(pillar string, interval bounce.Interval) string {
	return fmt.Sprintf("defects.%s.%s.%s.bounce.report",
		pillar, interval.Start.Format("20060102"), interval.End.Format("20060102"))
}

// IssuesFilename derives the missing-required-field report file name, e.g.
// "defects.platform.20240301.20240331.issues.report".
func IssuesFilename(pillar string, interval bounce.Interval) string {
	return fmt.Sprintf("defects.%s.%s.%s.issues.report",
		pillar, interval.Start.Format("20060102"), interval.End.Format("20060102"))
}

// WriteFile writes a rendered report.
func WriteFile(path, content string) error {
	if err := os.WriteFile(path, []byte("\n"+content+"\n"), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
