package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bouncer/internal/bounce"
	"bouncer/internal/config"
	"bouncer/internal/logging"
	"bouncer/internal/store"
)

var fetchFlags struct {
	pillars  []string
	start    string
	end      string
	user     string
	password string
	url      string
	dbPath   string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Query the tracker and save defect snapshots for offline reporting",
	Long: `Fetches defects and changelogs for every project the requested pillars
define and stores them in the local snapshot DB. "report --offline" then
recomputes metrics without network access.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringSliceVarP(&fetchFlags.pillars, "pillar", "r", nil,
		"REQUIRED: Pillar to fetch (repeatable), or ALL for every configured pillar")
	f.StringVarP(&fetchFlags.start, "start", "s", "", "REQUIRED: Start of date range: YYYY-MM-DD")
	f.StringVarP(&fetchFlags.end, "end", "e", "", "REQUIRED: End of date range: YYYY-MM-DD")
	f.StringVarP(&fetchFlags.user, "user", "u", "",
		"Tracker username; defaults to $"+config.EnvUser)
	f.StringVarP(&fetchFlags.password, "password", "p", "",
		"Tracker password; defaults to $"+config.EnvPassword)
	f.StringVar(&fetchFlags.url, "url", "",
		"Tracker base URL; per-pillar config URLs take precedence")
	f.StringVar(&fetchFlags.dbPath, "db", store.DefaultDBPath, "Snapshot DB path")

	_ = fetchCmd.MarkFlagRequired("pillar")
	_ = fetchCmd.MarkFlagRequired("start")
	_ = fetchCmd.MarkFlagRequired("end")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	interval, err := bounce.ParseInterval(fetchFlags.start, fetchFlags.end)
	if err != nil {
		return err
	}
	cfg, err := loadMappingConfig()
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(fetchFlags.user, fetchFlags.password, fetchFlags.url)
	if err != nil {
		return err
	}

	logging.Init(logging.Level(rootFlags.debug), "text")
	logger := logging.New("fetch")

	snaps, err := store.Open(fetchFlags.dbPath)
	if err != nil {
		return err
	}
	defer snaps.Close()

	succeeded := 0
	for _, pillar := range expandPillars(cfg, fetchFlags.pillars) {
		m, err := cfg.Pillar(pillar)
		if err != nil {
			logger.Error("skipping pillar", "pillar", pillar, "error", err)
			continue
		}
		projects, err := fetchPillar(cmd.Context(), m, creds, interval, logger)
		if err != nil {
			logger.Error("skipping pillar", "pillar", pillar, "error", err)
			continue
		}
		for project, records := range projects {
			if err := snaps.SaveSnapshot(pillar, project, records); err != nil {
				return err
			}
			fmt.Printf("saved %s/%s: %d defects\n", pillar, project, len(records))
		}
		succeeded++
	}

	if succeeded == 0 {
		return fmt.Errorf("no pillar could be fetched")
	}
	return nil
}
