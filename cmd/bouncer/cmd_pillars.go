package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bouncer/internal/report"
)

var pillarsCmd = &cobra.Command{
	Use:   "pillars",
	Short: "List the configured pillars and their projects",
	RunE:  runPillars,
}

func runPillars(_ *cobra.Command, _ []string) error {
	cfg, err := loadMappingConfig()
	if err != nil {
		return err
	}

	tbl := report.NewTable(report.ASCII)
	tbl.Header("Pillar", "Projects", "State Order")
	tbl.Columns(report.ColumnConfig{Number: 3, Align: report.AlignLeft, MaxWidth: 60})

	for _, name := range cfg.Pillars() {
		m, err := cfg.Pillar(name)
		if err != nil {
			tbl.Row(name, fmt.Sprintf("INVALID: %v", err), "")
			continue
		}
		tbl.Row(name, strings.Join(m.Projects(), ", "), strings.Join(m.Order(), " > "))
	}

	fmt.Println(tbl.String())
	return nil
}
