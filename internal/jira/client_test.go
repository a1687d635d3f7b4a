package jira_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bouncer/internal/bounce"
	"bouncer/internal/jira"
	"bouncer/internal/logging"
	"bouncer/internal/statusmap"
)

const pillarConfig = `
platform:
  order: [new, open, test, closed]
  states:
    new: [new]
    open: [in progress, reopened]
    test: [in test]
    closed: [done, closed]
`

func platformMapping(t *testing.T) *statusmap.Mapping {
	t.Helper()
	cfg, err := statusmap.Parse([]byte(pillarConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, err := cfg.Pillar("platform")
	if err != nil {
		t.Fatalf("Pillar: %v", err)
	}
	return m
}

func newClient(t *testing.T, handler http.Handler) *jira.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := jira.New(srv.URL, "user", "secret", jira.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func issueJSON(key, status, created string) string {
	return fmt.Sprintf(`{
		"key": %q,
		"fields": {
			"summary": "summary for %s",
			"created": %q,
			"environment": "staging",
			"status": {"name": %q},
			"priority": {"name": "high"},
			"creator": {"name": "rknox"},
			"assignee": {"name": "asaji"},
			"components": [{"name": "router"}],
			"fixVersions": [{"name": "v2.1"}],
			"labels": ["regression"],
			"customfield_13654": {"value": "major"},
			"customfield_14116": {"value": "system test"}
		}
	}`, key, key, created, status)
}

func TestParseStamp(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2014-06-10T15:22:11.372+0000", "2014-06-10T15:22:11.372"},
		{"2014-06-10T15:22:11.372-0500", "2014-06-10T15:22:11.372"},
		{"2014-06-10T15:22:11.372", "2014-06-10T15:22:11.372"},
	}
	for _, tc := range tests {
		got, err := jira.ParseStamp(tc.raw)
		if err != nil {
			t.Errorf("ParseStamp(%q): %v", tc.raw, err)
			continue
		}
		want, _ := time.Parse("2006-01-02T15:04:05.000", tc.want)
		if !got.Equal(want) {
			t.Errorf("ParseStamp(%q) = %v, want %v (zone dropped)", tc.raw, got, want)
		}
	}

	if _, err := jira.ParseStamp("not a stamp"); err == nil {
		t.Error("expected error for malformed stamp")
	}
}

func TestSearch_Paginates(t *testing.T) {
	var jqls []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "user" || pass != "secret" {
			t.Error("basic auth not forwarded")
		}
		jqls = append(jqls, r.URL.Query().Get("jql"))

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		first := issueJSON("NEUT-1", "Done", "2024-03-02T10:00:00.000+0000")
		second := issueJSON("NEUT-2", "In Progress", "2024-03-03T10:00:00.000+0000")

		body := fmt.Sprintf(`{"startAt": %d, "total": 2, "issues": [%s]}`, startAt, first)
		if startAt > 0 {
			body = fmt.Sprintf(`{"startAt": %d, "total": 2, "issues": [%s]}`, startAt, second)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	c := newClient(t, handler)
	issues, err := c.Search(context.Background(), "neut",
		jira.WithIssueType(jira.DefectIssueType),
		jira.WithUpdatedBetween(
			time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(issues) != 2 {
		t.Fatalf("expected 2 issues across pages, got %d", len(issues))
	}
	if issues[0].Key != "NEUT-1" || issues[1].Key != "NEUT-2" {
		t.Errorf("unexpected issue keys: %s, %s", issues[0].Key, issues[1].Key)
	}

	wantJQL := `project = 'neut' AND issuetype = defect AND updated >= "2024/03/01" AND updated <= "2024/03/31"`
	if len(jqls) == 0 || jqls[0] != wantJQL {
		t.Errorf("jql = %q, want %q", jqls[0], wantJQL)
	}
}

func TestSearch_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errorMessages": ["The value 'nosuch' does not exist for the field 'project'."]}`)
	})

	c := newClient(t, handler)
	_, err := c.Search(context.Background(), "nosuch")

	var apiErr *jira.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
}

func changelogHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("expand") != "changelog" {
			t.Errorf("changelog not expanded: %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"key": "NEUT-1",
			"fields": %s,
			"changelog": {"histories": [
				{"created": "2024-03-02T10:00:00.000+0000",
				 "items": [{"field": "status", "fromString": "New", "toString": "In Progress"}]},
				{"created": "2024-03-03T10:00:00.000+0000",
				 "items": [{"field": "assignee", "toString": "asaji"},
				           {"field": "status", "fromString": "In Progress", "toString": "In Test"}]},
				{"created": "2024-03-04T10:00:00.000+0000",
				 "items": [{"field": "status", "fromString": "In Test", "toString": "Blocked"}]},
				{"created": "2024-03-05T10:00:00.000+0000",
				 "items": [{"field": "status", "fromString": "Blocked", "toString": "Done"}]}
			]}
		}`, fieldsJSON("Done", "2024-03-01T09:00:00.000+0000"))
	})
}

func fieldsJSON(status, created string) string {
	return fmt.Sprintf(`{
		"summary": "router drops tagged traffic",
		"created": %q,
		"environment": "staging",
		"status": {"name": %q},
		"priority": {"name": "high"},
		"creator": {"name": "rknox"},
		"components": [{"name": "router"}],
		"customfield_13654": {"value": "major"}
	}`, created, status)
}

func TestChangeLogAndDecompose(t *testing.T) {
	c := newClient(t, changelogHandler(t))
	m := platformMapping(t)

	resp, err := c.ChangeLog(context.Background(), "NEUT-1")
	if err != nil {
		t.Fatalf("ChangeLog: %v", err)
	}
	rec := c.Decompose(resp, m)

	if rec.ID != "NEUT-1" || rec.Project != "neut" || rec.Pillar != "platform" {
		t.Errorf("identity fields wrong: %+v", rec)
	}
	if rec.Status != "closed" {
		t.Errorf("status = %q, want closed (mapped from Done)", rec.Status)
	}
	if rec.Severity != "major" {
		t.Errorf("severity = %q, want major", rec.Severity)
	}

	// "Blocked" is unmapped and must be skipped with a diagnostic only.
	wantActuals := []string{"new", "in progress", "in test", "done"}
	if diff := cmp.Diff(wantActuals, rec.Actuals()); diff != "" {
		t.Errorf("Actuals mismatch (-want +got):\n%s", diff)
	}
	wantReduced := []string{"new", "open", "test", "closed"}
	if diff := cmp.Diff(wantReduced, rec.Reduced()); diff != "" {
		t.Errorf("Reduced mismatch (-want +got):\n%s", diff)
	}

	if rec.Timeline[0].At.IsZero() {
		t.Error("seed event should carry the creation stamp")
	}
}

func TestDecompose_UnmappedCurrentStatusKeepsRaw(t *testing.T) {
	resp := &jira.ChangeLogResponse{Key: "NEUT-9"}
	data := fieldsJSON("Limbo", "2024-03-01T09:00:00.000+0000")
	if err := json.Unmarshal([]byte(data), &resp.Fields); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}

	c := newClient(t, http.NotFoundHandler())
	rec := c.Decompose(resp, platformMapping(t))

	if rec.Status != "limbo" {
		t.Errorf("status = %q, want raw lowercased label", rec.Status)
	}
}

func TestFetchDefects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"startAt": 0, "total": 1, "issues": [%s]}`,
			issueJSON("NEUT-1", "Done", "2024-03-01T09:00:00.000+0000"))
	})
	mux.Handle("/rest/api/2/issue/NEUT-1", changelogHandler(t))

	c := newClient(t, mux)
	interval := bounce.Interval{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	records, err := c.FetchDefects(context.Background(), platformMapping(t), "neut", interval)
	if err != nil {
		t.Fatalf("FetchDefects: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if got := records[0].Reduced(); len(got) != 4 || got[3] != "closed" {
		t.Errorf("unexpected reduced history: %v", got)
	}
}
