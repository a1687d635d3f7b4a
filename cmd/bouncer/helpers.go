package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bouncer/internal/bounce"
	"bouncer/internal/config"
	"bouncer/internal/defect"
	"bouncer/internal/jira"
	"bouncer/internal/statusmap"
)

// allPillars is the sentinel that expands to every configured pillar.
const allPillars = "ALL"

func loadMappingConfig() (*statusmap.Config, error) {
	if rootFlags.cfgPath == "" {
		return nil, fmt.Errorf("a mapping config file is required (--cfg)")
	}
	return statusmap.Load(rootFlags.cfgPath)
}

// expandPillars resolves the requested pillar list, expanding the ALL
// sentinel (case-insensitive) to every pillar the config defines.
func expandPillars(cfg *statusmap.Config, requested []string) []string {
	for _, p := range requested {
		if strings.EqualFold(p, allPillars) {
			return cfg.Pillars()
		}
	}
	return requested
}

// pillarBaseURL prefers the per-pillar URL from the mapping file, falling
// back to the resolved credential default.
func pillarBaseURL(m *statusmap.Mapping, creds config.Credentials) string {
	if u := m.URL(); u != "" {
		return u
	}
	return creds.BaseURL
}

// logFileName mirrors the report file naming: one shared log per run, or a
// pillar-scoped one when a single pillar is requested.
func logFileName(interval bounce.Interval, pillars []string) string {
	dates := fmt.Sprintf("%s.%s",
		interval.Start.Format("20060102"), interval.End.Format("20060102"))
	if len(pillars) == 1 {
		return fmt.Sprintf("defects.%s.%s.log", dates, pillars[0])
	}
	return fmt.Sprintf("defects.%s.log", dates)
}

// fetchPillar queries the tracker for every project the pillar defines and
// decomposes the results into defect records keyed by project.
func fetchPillar(ctx context.Context, m *statusmap.Mapping, creds config.Credentials,
	interval bounce.Interval, logger *slog.Logger) (map[string][]*defect.Record, error) {

	client, err := jira.New(pillarBaseURL(m, creds), creds.User, creds.Password,
		jira.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	projects := make(map[string][]*defect.Record, len(m.Projects()))
	for _, project := range m.Projects() {
		logger.Info("querying defects", "pillar", m.Pillar(), "project", project)
		records, err := client.FetchDefects(ctx, m, project, interval)
		if err != nil {
			return nil, fmt.Errorf("fetch %s/%s: %w", m.Pillar(), project, err)
		}
		if len(records) == 0 {
			logger.Info("no defects returned; check the query, the date range, or enable debug",
				"pillar", m.Pillar(), "project", project)
		}
		projects[project] = records
	}
	return projects, nil
}
