package jira

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"bouncer/internal/bounce"
	"bouncer/internal/defect"
	"bouncer/internal/statusmap"
	"bouncer/internal/timeline"
)

// sourceName tags records with the tracker they came from.
const sourceName = "JIRA"

// DefectIssueType is the issue type the metrics query for.
const DefectIssueType = "defect"

// changelogWorkers bounds the parallel changelog fetches per project. One
// extra request per issue adds up fast on big projects; the server side is
// the limit, not the CPU.
const changelogWorkers = 4

// Decompose converts one issue plus its changelog into a defect record,
// reconstructing the timeline with the pillar's mapping. Missing nested
// fields warn and stay blank; an unmapped current status warns and keeps the
// raw label.
func (c *Client) Decompose(issue *ChangeLogResponse, mapping *statusmap.Mapping) *defect.Record {
	key := issue.Key
	fields := issue.Fields

	rec := &defect.Record{
		ID:          key,
		Project:     strings.ToLower(strings.SplitN(key, "-", 2)[0]),
		Pillar:      mapping.Pillar(),
		Title:       fields.Summary,
		Description: fields.Description,
		Link:        c.BrowseURL(key),
		Environment: fields.Environment,
		Labels:      fields.Labels,
		Source:      sourceName,
		Created:     timeline.Truncate(fields.Created.Time),
	}

	rec.Status = c.resolveStatus(key, fields.Status, mapping)
	rec.Priority = named(fields.Priority)
	rec.Assignee = named(fields.Assignee)
	rec.Reporter = named(fields.Creator)
	rec.Severity = value(fields.Severity)
	rec.Detected = value(fields.Detected)

	for _, comp := range fields.Components {
		rec.Components = append(rec.Components, comp.Name)
	}
	for _, ver := range fields.FixVersions {
		rec.FixVersions = append(rec.FixVersions, ver.Name)
	}

	for _, field := range rec.MissingFields() {
		c.logger.Warn("defect missing required field", "defect", key, "field", field)
	}

	rec.Timeline = timeline.Build(rec.Created, Changes(issue.ChangeLog), mapping, c.logger)
	return rec
}

// resolveStatus normalizes the issue's current status through the mapping.
// Unrecognized statuses need classifying in the mapping file; until then the
// raw label is kept so reports stay readable.
func (c *Client) resolveStatus(key string, status *Named, mapping *statusmap.Mapping) string {
	if status == nil {
		c.logger.Warn("defect missing required field", "defect", key, "field", "status")
		return ""
	}
	canonical, err := mapping.Resolve(status.Name)
	if err != nil {
		if errors.Is(err, statusmap.ErrUnmapped) {
			c.logger.Error("unrecognized defect status, add it to the mapping file",
				"defect", key, "status", strings.ToLower(status.Name))
		}
		return strings.ToLower(status.Name)
	}
	return canonical
}

// Changes flattens a changelog into the audit entries the timeline builder
// consumes, preserving source order.
func Changes(log *ChangeLog) []timeline.Change {
	if log == nil {
		return nil
	}
	var out []timeline.Change
	for _, h := range log.Histories {
		for _, item := range h.Items {
			out = append(out, timeline.Change{
				Field: item.Field,
				To:    item.ToString,
				At:    h.Created.Time,
			})
		}
	}
	return out
}

// FetchDefects searches one project for defects updated inside the interval
// and resolves each into a record, fetching changelogs with bounded
// parallelism. Individual changelog failures degrade that defect to its
// search-result view (seeded timeline only) rather than failing the batch.
func (c *Client) FetchDefects(ctx context.Context, mapping *statusmap.Mapping, project string, interval bounce.Interval) ([]*defect.Record, error) {
	issues, err := c.Search(ctx, project,
		WithIssueType(DefectIssueType),
		WithUpdatedBetween(interval.Start, interval.End),
	)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		c.logger.Info("no defects returned", "project", project)
		return nil, nil
	}

	records := make([]*defect.Record, len(issues))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(changelogWorkers)
	for i, issue := range issues {
		g.Go(func() error {
			full, err := c.ChangeLog(ctx, issue.Key)
			if err != nil {
				c.logger.Error("fetch changelog", "defect", issue.Key, "error", err)
				full = &ChangeLogResponse{Key: issue.Key, Fields: issue.Fields}
			}
			records[i] = c.Decompose(full, mapping)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}
