package main

import (
	"github.com/spf13/cobra"

	"bouncer/internal/logging"
	"bouncer/internal/mcpserver"
	"bouncer/internal/store"
)

var serveFlags struct {
	dbPath string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the pillar configuration
and snapshot-driven bounce reports as tools. Logs go to stderr so stdout
stays clean for the protocol.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.dbPath, "db", store.DefaultDBPath, "Snapshot DB path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadMappingConfig()
	if err != nil {
		return err
	}
	snaps, err := store.Open(serveFlags.dbPath)
	if err != nil {
		return err
	}
	defer snaps.Close()

	logging.Init(logging.Level(rootFlags.debug), "text")
	logger := logging.New("mcp")
	logger.Info("starting bouncer MCP server over stdio")

	srv := mcpserver.NewServer(cfg, snaps, version, logger)
	return srv.Run(cmd.Context())
}
