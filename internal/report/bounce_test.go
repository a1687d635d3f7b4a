package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bouncer/internal/bounce"
	"bouncer/internal/defect"
	"bouncer/internal/report"
	"bouncer/internal/timeline"
)

var interval = bounce.Interval{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
}

func record(id, project string, states ...string) *defect.Record {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	tl := make(timeline.Timeline, len(states))
	for i, s := range states {
		tl[i] = timeline.StateEvent{Actual: s, Canonical: s, At: base.AddDate(0, 0, i)}
	}
	return &defect.Record{
		ID: id, Project: project, Pillar: "platform",
		Priority: "high", Severity: "major", Environment: "staging",
		Components: []string{"router"},
		Reporter:   "rknox", Created: base, Timeline: tl,
	}
}

func analyzed(t *testing.T, projects map[string][]*defect.Record) (*bounce.Result, *bounce.Analyzer) {
	t.Helper()
	a, err := bounce.New(interval)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a.Analyze(projects), a
}

func TestRenderBounce(t *testing.T) {
	violator := record("NEUT-1", "neut",
		"new", "open", "test", "open", "test", "open", "test", "closed")
	clean := record("NEUT-2", "neut", "new", "open", "test", "closed")

	res, a := analyzed(t, map[string][]*defect.Record{
		"neut": {violator, clean},
		"dp":   nil,
	})

	out := report.RenderBounce("platform", res, interval, a.SLALimit(), report.ASCII)

	for _, want := range []string{
		"SLA Limit: 2 bounces.",
		"Stats for 2024/03/01 - 2024/03/31:",
		"NEUT",
		"Defects:   2",
		"Bounced:  1",
		"Percent Bounced Back: 50.0%",
		"NEUT-1",
		"No bounce backs", // the dp project row
		"VIOLATION DETAILS:",
		"Id: NEUT-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	// The violator is marked in the table.
	if !strings.Contains(out, "*") {
		t.Error("violation marker missing from table")
	}
}

func TestRenderBounce_NoViolations(t *testing.T) {
	bounced := record("DP-1", "dp", "new", "open", "test", "open", "test", "closed")
	res, a := analyzed(t, map[string][]*defect.Record{"dp": {bounced}})

	out := report.RenderBounce("platform", res, interval, a.SLALimit(), report.ASCII)

	if !strings.Contains(out, "VIOLATION DETAILS:\nNone") {
		t.Errorf("expected empty violation section:\n%s", out)
	}
}

func TestRenderIssues(t *testing.T) {
	bad := record("NEUT-3", "neut", "new", "open")
	bad.Severity = ""
	bad.Components = nil

	findings := defect.Validate([]*defect.Record{bad})
	out := report.RenderIssues(findings)

	for _, want := range []string{"Reporter: rknox", "NEUT-3: component, severity"} {
		if !strings.Contains(out, want) {
			t.Errorf("issues report missing %q:\n%s", want, out)
		}
	}
}

func TestFilename(t *testing.T) {
	got := report.Filename("platform", interval)
	want := "defects.platform.20240301.20240331.bounce.report"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.report")
	if err := report.WriteFile(path, "hello"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestTableModes(t *testing.T) {
	res, a := analyzed(t, map[string][]*defect.Record{"neut": nil})

	ascii := report.RenderBounce("platform", res, interval, a.SLALimit(), report.ASCII)
	md := report.RenderBounce("platform", res, interval, a.SLALimit(), report.Markdown)

	if ascii == md {
		t.Error("ASCII and Markdown renderings should differ")
	}
	if !strings.Contains(md, "| Pillar") {
		t.Errorf("markdown table header missing:\n%s", md)
	}
}
