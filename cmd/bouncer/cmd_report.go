package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"bouncer/internal/bounce"
	"bouncer/internal/config"
	"bouncer/internal/defect"
	"bouncer/internal/logging"
	"bouncer/internal/report"
	"bouncer/internal/store"
)

var reportFlags struct {
	pillars  []string
	start    string
	end      string
	user     string
	password string
	url      string
	slaLimit int
	offline  bool
	dbPath   string
	issues   bool
	markdown bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute bounce-back metrics and write per-pillar report files",
	Long: `Queries the tracker (or a saved snapshot with --offline) for every project
a pillar defines, builds each defect's state timeline, and reports how many
closed defects bounced from test back to development within the date range.

Writes defects.<pillar>.<start>.<end>.bounce.report per pillar and keeps a
defect log for the run. Use --pillar ALL to report on every configured pillar.`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringSliceVarP(&reportFlags.pillars, "pillar", "r", nil,
		"REQUIRED: Pillar to report on (repeatable), or ALL for every configured pillar")
	f.StringVarP(&reportFlags.start, "start", "s", "", "REQUIRED: Start of date range: YYYY-MM-DD")
	f.StringVarP(&reportFlags.end, "end", "e", "", "REQUIRED: End of date range: YYYY-MM-DD")
	f.StringVarP(&reportFlags.user, "user", "u", "",
		"Tracker username; defaults to $"+config.EnvUser)
	f.StringVarP(&reportFlags.password, "password", "p", "",
		"Tracker password; defaults to $"+config.EnvPassword)
	f.StringVar(&reportFlags.url, "url", "",
		"Tracker base URL; per-pillar config URLs take precedence")
	f.IntVar(&reportFlags.slaLimit, "sla-limit", bounce.DefaultSLALimit,
		"Bounce count above which a defect violates the SLA")
	f.BoolVar(&reportFlags.offline, "offline", false, "Analyze saved snapshots instead of querying the tracker")
	f.StringVar(&reportFlags.dbPath, "db", store.DefaultDBPath, "Snapshot DB path (used with --offline)")
	f.BoolVar(&reportFlags.issues, "issues", false, "Also write the missing-required-field report per pillar")
	f.BoolVar(&reportFlags.markdown, "markdown", false, "Render tables as Markdown instead of ASCII")

	_ = reportCmd.MarkFlagRequired("pillar")
	_ = reportCmd.MarkFlagRequired("start")
	_ = reportCmd.MarkFlagRequired("end")
}

func runReport(cmd *cobra.Command, _ []string) error {
	interval, err := bounce.ParseInterval(reportFlags.start, reportFlags.end)
	if err != nil {
		return err
	}
	cfg, err := loadMappingConfig()
	if err != nil {
		return err
	}
	pillars := expandPillars(cfg, reportFlags.pillars)

	closer, err := logging.InitWithFile(logging.Level(rootFlags.debug), "text",
		logFileName(interval, pillars))
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := logging.New("report")

	var creds config.Credentials
	var snaps *store.Store
	if reportFlags.offline {
		snaps, err = store.Open(reportFlags.dbPath)
		if err != nil {
			return err
		}
		defer snaps.Close()
	} else {
		creds, err = config.LoadCredentials(reportFlags.user, reportFlags.password, reportFlags.url)
		if err != nil {
			return err
		}
	}

	mode := report.ASCII
	if reportFlags.markdown {
		mode = report.Markdown
	}

	succeeded := 0
	for _, pillar := range pillars {
		fmt.Printf("\n%s\n%s\n%s\n", banner(), center(pillar), banner())

		m, err := cfg.Pillar(pillar)
		if err != nil {
			logger.Error("skipping pillar", "pillar", pillar, "error", err)
			continue
		}
		logger.Info("running bounce metrics",
			"pillar", pillar,
			"projects", strings.Join(m.Projects(), ", "),
			"start", interval.Start.Format("2006/01/02"),
			"end", interval.End.Format("2006/01/02"))

		var projects map[string][]*defect.Record
		if reportFlags.offline {
			projects, err = snaps.LoadPillar(pillar)
			if err == nil && len(projects) == 0 {
				err = fmt.Errorf("no snapshots for pillar %q; run fetch first", pillar)
			}
		} else {
			projects, err = fetchPillar(cmd.Context(), m, creds, interval, logger)
		}
		if err != nil {
			logger.Error("skipping pillar", "pillar", pillar, "error", err)
			continue
		}

		if err := writePillarReports(pillar, projects, interval, mode, logger); err != nil {
			logger.Error("skipping pillar", "pillar", pillar, "error", err)
			continue
		}
		succeeded++
	}

	logger.Info("processing complete")
	if succeeded == 0 {
		return fmt.Errorf("no pillar produced a report")
	}
	return nil
}

func writePillarReports(pillar string, projects map[string][]*defect.Record,
	interval bounce.Interval, mode report.Mode, logger *slog.Logger) error {
	analyzer, err := bounce.New(interval,
		bounce.WithSLALimit(reportFlags.slaLimit),
		bounce.WithLogger(logging.New("bounce")))
	if err != nil {
		return err
	}
	res := analyzer.Analyze(projects)

	out := report.RenderBounce(pillar, res, interval, analyzer.SLALimit(), mode)
	fmt.Println(out)

	path := report.Filename(pillar, interval)
	if err := report.WriteFile(path, out); err != nil {
		return err
	}
	logger.Info("report written", "pillar", pillar, "file", path)

	if !reportFlags.issues {
		return nil
	}
	var all []*defect.Record
	for _, records := range projects {
		all = append(all, records...)
	}
	issuesPath := report.IssuesFilename(pillar, interval)
	if err := report.WriteFile(issuesPath, report.RenderIssues(defect.Validate(all))); err != nil {
		return err
	}
	logger.Info("issues report written", "pillar", pillar, "file", issuesPath)
	return nil
}

const bannerWidth = 120

func banner() string { return strings.Repeat("+", bannerWidth) }

func center(s string) string {
	pad := bannerWidth - len(s)
	if pad < 0 {
		return s
	}
	return strings.Repeat(" ", pad/2) + s
}
