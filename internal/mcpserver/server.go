// Package mcpserver exposes the bounce metrics over the Model Context
// Protocol so agent tooling can query pillar configuration and run reports
// against saved snapshots.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"bouncer/internal/bounce"
	"bouncer/internal/defect"
	"bouncer/internal/logging"
	"bouncer/internal/report"
	"bouncer/internal/statusmap"
	"bouncer/internal/store"
)

// SnapshotLoader is the subset of the snapshot store the server reads from.
type SnapshotLoader interface {
	LoadPillar(pillar string) (map[string][]*defect.Record, error)
	ListSnapshots() ([]store.Snapshot, error)
}

// Server wraps the MCP SDK server around the pillar config and snapshot
// store.
type Server struct {
	MCPServer *sdkmcp.Server

	cfg    *statusmap.Config
	snaps  SnapshotLoader
	logger *slog.Logger
}

// NewServer creates an MCP server exposing the pillar and report tools.
func NewServer(cfg *statusmap.Config, snaps SnapshotLoader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{cfg: cfg, snaps: snaps, logger: logger}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "bouncer", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_pillars",
		Description: "List the configured pillars with their canonical state order and tracked projects.",
	}, s.handleListPillars)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_snapshots",
		Description: "List saved defect snapshots (pillar, project, fetch time, record count).",
	}, s.handleListSnapshots)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "bounce_report",
		Description: "Run the bounce-back analysis for one pillar against saved snapshots and return per-project stats plus the rendered report.",
	}, s.handleBounceReport)
}

// Run serves MCP over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// --- Tool input/output types ---

type listPillarsInput struct{}

type pillarInfo struct {
	Name     string   `json:"name"`
	Order    []string `json:"order"`
	Projects []string `json:"projects,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type listPillarsOutput struct {
	Pillars []pillarInfo `json:"pillars"`
}

type listSnapshotsInput struct{}

type snapshotInfo struct {
	Pillar    string `json:"pillar"`
	Project   string `json:"project"`
	FetchedAt string `json:"fetched_at"`
	Count     int    `json:"count"`
}

type listSnapshotsOutput struct {
	Snapshots []snapshotInfo `json:"snapshots"`
}

type bounceReportInput struct {
	Pillar   string `json:"pillar" jsonschema:"pillar name from list_pillars"`
	Start    string `json:"start" jsonschema:"interval start, yyyy-mm-dd (2-digit year accepted)"`
	End      string `json:"end" jsonschema:"interval end, yyyy-mm-dd"`
	SLALimit int    `json:"sla_limit,omitempty" jsonschema:"bounce count above which a defect violates the SLA (default 2)"`
}

type projectStats struct {
	Project    string  `json:"project"`
	Total      int     `json:"total"`
	Bounced    int     `json:"bounced"`
	Violations int     `json:"violations"`
	Percent    float64 `json:"percent_bounced"`
}

type bounceReportOutput struct {
	Pillar   string         `json:"pillar"`
	Stats    []projectStats `json:"stats"`
	Report   string         `json:"report"`
	SLALimit int            `json:"sla_limit"`
}

// --- Handlers ---

func (s *Server) handleListPillars(_ context.Context, _ *sdkmcp.CallToolRequest, _ listPillarsInput) (*sdkmcp.CallToolResult, listPillarsOutput, error) {
	var out listPillarsOutput
	for _, name := range s.cfg.Pillars() {
		info := pillarInfo{Name: name}
		m, err := s.cfg.Pillar(name)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Order = m.Order()
			info.Projects = m.Projects()
		}
		out.Pillars = append(out.Pillars, info)
	}
	return nil, out, nil
}

func (s *Server) handleListSnapshots(_ context.Context, _ *sdkmcp.CallToolRequest, _ listSnapshotsInput) (*sdkmcp.CallToolResult, listSnapshotsOutput, error) {
	var out listSnapshotsOutput
	if s.snaps == nil {
		return nil, out, fmt.Errorf("no snapshot store configured")
	}
	snaps, err := s.snaps.ListSnapshots()
	if err != nil {
		return nil, out, err
	}
	for _, snap := range snaps {
		out.Snapshots = append(out.Snapshots, snapshotInfo{
			Pillar:    snap.Pillar,
			Project:   snap.Project,
			FetchedAt: snap.FetchedAt.Format(time.RFC3339),
			Count:     snap.Count,
		})
	}
	return nil, out, nil
}

func (s *Server) handleBounceReport(_ context.Context, _ *sdkmcp.CallToolRequest, input bounceReportInput) (*sdkmcp.CallToolResult, bounceReportOutput, error) {
	var out bounceReportOutput
	if s.snaps == nil {
		return nil, out, fmt.Errorf("no snapshot store configured")
	}

	interval, err := bounce.ParseInterval(input.Start, input.End)
	if err != nil {
		return nil, out, err
	}
	if _, err := s.cfg.Pillar(input.Pillar); err != nil {
		return nil, out, err
	}

	projects, err := s.snaps.LoadPillar(input.Pillar)
	if err != nil {
		return nil, out, err
	}
	if len(projects) == 0 {
		return nil, out, fmt.Errorf("no snapshots for pillar %q; run fetch first", input.Pillar)
	}

	opts := []bounce.Option{bounce.WithLogger(s.logger)}
	if input.SLALimit > 0 {
		opts = append(opts, bounce.WithSLALimit(input.SLALimit))
	}
	analyzer, err := bounce.New(interval, opts...)
	if err != nil {
		return nil, out, err
	}
	res := analyzer.Analyze(projects)

	out.Pillar = input.Pillar
	out.SLALimit = analyzer.SLALimit()
	for _, project := range res.Projects() {
		sum := res.Summaries[project]
		out.Stats = append(out.Stats, projectStats{
			Project:    project,
			Total:      sum.Total,
			Bounced:    sum.Bounced,
			Violations: len(sum.Violations),
			Percent:    sum.Percent(),
		})
	}
	out.Report = report.RenderBounce(input.Pillar, res, interval, analyzer.SLALimit(), report.Markdown)
	return nil, out, nil
}
