package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	cfgPath string
	debug   bool
}

var rootCmd = &cobra.Command{
	Use:   "bouncer",
	Short: "Defect bounce-back metrics from Jira changelogs",
	Long: "Bouncer measures how often closed defects bounced from test back to\n" +
		"development, per pillar and project, and flags SLA violations.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.cfgPath, "cfg", "c", "", "Pillar mapping config file (YAML)")
	pf.BoolVarP(&rootFlags.debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(pillarsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
