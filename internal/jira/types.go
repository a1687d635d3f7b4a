package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Jira custom field IDs carrying classification data on this instance.
const (
	severityField = "customfield_13654"
	detectedField = "customfield_14116"
)

// stampLayout is Jira's issue timestamp format, minus the zone suffix.
// The zone is dropped on parse and fractional seconds keep millisecond
// precision, so stamps compare consistently across the whole pipeline.
const stampLayout = "2006-01-02T15:04:05.000"

// Stamp is a Jira timestamp such as "2014-06-10T15:22:11.372+0000".
type Stamp struct {
	time.Time
}

// UnmarshalJSON parses the Jira timestamp, discarding the zone offset.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal stamp: %w", err)
	}
	if raw == "" {
		s.Time = time.Time{}
		return nil
	}
	t, err := ParseStamp(raw)
	if err != nil {
		return err
	}
	s.Time = t
	return nil
}

// MarshalJSON writes the stamp back in the zone-less layout.
func (s Stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Time.Format(stampLayout))
}

// ParseStamp parses a Jira timestamp string, cutting any zone suffix.
func ParseStamp(raw string) (time.Time, error) {
	local := raw
	if i := strings.IndexAny(local, "+Z"); i >= 0 {
		local = local[:i]
	} else if i := strings.LastIndex(local, "-"); i > len(stampLayout)-6 {
		// A trailing "-0500" style offset; date separators sit well before.
		local = local[:i]
	}
	if len(local) > len(stampLayout) {
		local = local[:len(stampLayout)]
	}
	t, err := time.Parse(stampLayout, local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stamp %q: %w", raw, err)
	}
	return t, nil
}

// searchResponse is the /rest/api/2/search envelope.
type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue is one issue from a search response.
type Issue struct {
	Key    string      `json:"key"`
	Self   string      `json:"self,omitempty"`
	Fields IssueFields `json:"fields"`
}

// IssueFields carries the subset of Jira fields the metrics need.
type IssueFields struct {
	Summary     string      `json:"summary"`
	Description string      `json:"description,omitempty"`
	Created     Stamp       `json:"created"`
	Environment string      `json:"environment,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
	Status      *Named      `json:"status,omitempty"`
	Priority    *Named      `json:"priority,omitempty"`
	Assignee    *Named      `json:"assignee,omitempty"`
	Creator     *Named      `json:"creator,omitempty"`
	Project     *Keyed      `json:"project,omitempty"`
	Components  []Named     `json:"components,omitempty"`
	FixVersions []Named     `json:"fixVersions,omitempty"`
	Severity    *ValueField `json:"customfield_13654,omitempty"`
	Detected    *ValueField `json:"customfield_14116,omitempty"`
}

// Named is the {"name": ...} shape Jira uses for status, priority, people
// and versions.
type Named struct {
	Name string `json:"name"`
}

// Keyed is the {"key": ...} shape used for projects.
type Keyed struct {
	Key string `json:"key"`
}

// ValueField is the {"value": ...} shape used by select-list custom fields.
type ValueField struct {
	Value string `json:"value"`
}

func named(n *Named) string {
	if n == nil {
		return ""
	}
	return n.Name
}

func value(v *ValueField) string {
	if v == nil {
		return ""
	}
	return v.Value
}

// ChangeLogResponse is an issue fetched with ?expand=changelog.
type ChangeLogResponse struct {
	Key       string      `json:"key"`
	Fields    IssueFields `json:"fields"`
	ChangeLog *ChangeLog  `json:"changelog,omitempty"`
}

// ChangeLog is the audit trail attached to an issue.
type ChangeLog struct {
	Histories []History `json:"histories"`
}

// History is one changelog transaction: a timestamp plus the fields that
// changed in it.
type History struct {
	Created Stamp         `json:"created"`
	Items   []HistoryItem `json:"items"`
}

// HistoryItem is one field change inside a transaction.
type HistoryItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString,omitempty"`
	ToString   string `json:"toString,omitempty"`
}
