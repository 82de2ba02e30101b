package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/collector"
	"github.com/blackwell-systems/feedbackwatch/internal/mcp"
	"github.com/blackwell-systems/feedbackwatch/internal/project"
	"github.com/blackwell-systems/feedbackwatch/internal/telemetry"
	"github.com/blackwell-systems/feedbackwatch/internal/tracker"
)

var mcpProject string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP stdio server that records sessions",
	Long: `Start a Model Context Protocol stdio server. The assistant front-end
calls its tools to record a session as it happens:

  start_monitoring            Open a session for a project
  record_user_interaction     Record a user message
  record_ai_interaction       Record an assistant response and its tool calls
  record_feedback_call        Record an interactive feedback request
  record_interruption         Record an interruption
  end_monitoring              Close the session
  get_current_metrics         Counters of the open session
  track_interactive_feedback  Feedback call with automatic project tracking
  get_session_quality         Quality score of the open session
  get_project_report          Aggregate report of a project
  list_projects               Projects with session logs
  set_auto_tracking           Toggle automatic session tracking

An open session is closed with reason auto_server_shutdown when the client
disconnects or the server is interrupted.

Add to your MCP client configuration:
  {"mcpServers":{"feedbackwatch":{"command":"feedbackwatch","args":["mcp"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpProject, "project", "p", "", "Start tracking this project name at startup (default: config mcp.default_project)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	logger := slog.Default()
	sink := telemetry.New(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Version:  appVersion,
	}, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	st := newStore()
	col := collector.New(st, collector.WithLogger(logger), collector.WithObserver(sink))
	an := newAnalyzer()
	detector := &project.Detector{}
	tr := tracker.New(col, an, tracker.WithLogger(logger), tracker.WithBranchFunc(detector.Branch))

	name := mcpProject
	if name == "" {
		name = cfg.MCP.DefaultProject
	}
	if name != "" {
		info := detector.Detect("")
		if err := tr.StartTracking(tracker.Descriptor{Path: info.Path, Name: name, Branch: info.Branch}); err != nil {
			return fmt.Errorf("starting session for %s: %w", name, err)
		}
	}

	srv := mcp.NewServer(tr, col, an,
		mcp.WithLogger(logger),
		mcp.WithVersion(appVersion),
		mcp.WithDetector(detector.Detect))
	return srv.Run(ctx, os.Stdin, os.Stdout)
}
