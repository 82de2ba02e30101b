package app

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/store"
)

var (
	trackCompare int
	trackHistory int
	trackDB      string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Snapshot project reports and compare over time",
	Long: `Analyze every project, store the reports as a snapshot in the history
database, and compare against a previous snapshot to show deltas with trend
arrows. --history N prints a timeline of the N most recent snapshots instead.`,
	Args: cobra.NoArgs,
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().IntVar(&trackCompare, "compare", 1, "Compare against Nth previous snapshot (1 = most recent)")
	trackCmd.Flags().IntVar(&trackHistory, "history", 0, "Show metric trends across N most recent snapshots")
	trackCmd.Flags().StringVar(&trackDB, "db", "", "History database path (default: ~/.config/feedbackwatch/feedbackwatch.db)")
	rootCmd.AddCommand(trackCmd)
}

// Report metric names stored per project.
const (
	metricTotalSessions   = "total_sessions"
	metricAutoTermRate    = "auto_termination_rate"
	metricHighRiskRate    = "high_risk_rate"
	metricAvgDurationMin  = "avg_duration_minutes"
	metricAvgUserMessages = "avg_user_messages"
	metricAvgToolCalls    = "avg_tool_calls"
)

// metricDisplayOrder defines the order metrics appear in track output.
var metricDisplayOrder = []string{
	metricTotalSessions,
	metricAutoTermRate,
	metricHighRiskRate,
	metricAvgDurationMin,
	metricAvgUserMessages,
	metricAvgToolCalls,
}

// lowerIsBetter lists metrics whose decrease is an improvement.
var lowerIsBetter = map[string]bool{
	metricAutoTermRate: true,
	metricHighRiskRate: true,
}

func higherIsBetter(name string) bool {
	return !lowerIsBetter[name]
}

// trendArrow styles a delta; rate metrics are stored as percentages.
func trendArrow(name string, delta float64) string {
	if lowerIsBetter[name] {
		return output.TrendArrowPercent(delta, false)
	}
	return output.TrendArrow(delta, true)
}

// metricShortName returns a compact label for display.
func metricShortName(name string) string {
	short := map[string]string{
		metricTotalSessions:   "Sessions",
		metricAutoTermRate:    "Auto-term %",
		metricHighRiskRate:    "High-risk %",
		metricAvgDurationMin:  "Avg Duration (min)",
		metricAvgUserMessages: "Avg Messages",
		metricAvgToolCalls:    "Avg Tool Calls",
	}
	if s, ok := short[name]; ok {
		return s
	}
	return name
}

// reportMetrics flattens a report into stored metric values. Rates are kept
// as percentages.
func reportMetrics(r analyzer.ProjectReport) map[string]float64 {
	return map[string]float64{
		metricTotalSessions:   float64(r.TotalSessions),
		metricAutoTermRate:    r.AutoTerminationRate * 100,
		metricHighRiskRate:    r.HighRiskRate * 100,
		metricAvgDurationMin:  r.AverageDurationSeconds / 60,
		metricAvgUserMessages: r.AverageUserMessages,
		metricAvgToolCalls:    r.AverageToolCalls,
	}
}

func openHistory() (*store.DB, error) {
	path := trackDB
	if path == "" {
		path = config.DBPath()
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if trackHistory > 0 {
		return renderHistory(w, db, trackHistory)
	}

	ov, err := newAnalyzer().Overview(cmd.Context())
	if err != nil {
		return err
	}
	current, err := saveSnapshot(db, ov)
	if err != nil {
		return err
	}

	var diff *store.SnapshotDiff
	previous, err := db.GetSnapshotN(trackCompare + 1)
	if err != nil {
		return fmt.Errorf("loading previous snapshot: %w", err)
	}
	if previous != nil {
		if diff, err = db.DiffSnapshots(previous, current, higherIsBetter); err != nil {
			return fmt.Errorf("comparing snapshots: %w", err)
		}
	}

	if flagJSON {
		result := map[string]any{"snapshot": current}
		if diff != nil {
			result["diff"] = diff
		}
		return writeJSON(w, result)
	}
	renderTrackOutput(w, current, diff)
	return nil
}

// saveSnapshot stores every report of ov plus the cross-project aggregate.
func saveSnapshot(db *store.DB, ov analyzer.Overview) (*store.Snapshot, error) {
	id, err := db.CreateSnapshot("track", appVersion)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	for _, r := range ov.Reports {
		if err := db.InsertReportMetrics(id, r.ProjectName, reportMetrics(r)); err != nil {
			return nil, fmt.Errorf("storing %s: %w", r.ProjectName, err)
		}
		if err := db.InsertCategories(id, r.ProjectName, r.CategoryDistribution); err != nil {
			return nil, fmt.Errorf("storing %s categories: %w", r.ProjectName, err)
		}
	}
	aggregate := map[string]float64{
		metricTotalSessions:  float64(ov.TotalSessions),
		metricAutoTermRate:   ov.AutoTerminationRate * 100,
		metricAvgDurationMin: ov.AverageDurationSeconds / 60,
	}
	if err := db.InsertReportMetrics(id, store.AggregateProject, aggregate); err != nil {
		return nil, fmt.Errorf("storing aggregate: %w", err)
	}

	snap, err := db.GetSnapshot(id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("snapshot vanished after insert")
	}
	return snap, nil
}

func renderTrackOutput(w io.Writer, current *store.Snapshot, diff *store.SnapshotDiff) {
	fmt.Fprintln(w, output.Section("Track: Snapshot Comparison"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " Snapshot #%d taken at %s\n\n", current.ID, current.TakenAt.Local().Format("2006-01-02 15:04:05"))

	if diff == nil {
		fmt.Fprintln(w, " First snapshot recorded. Run 'feedbackwatch track' again later to see trends.")
		return
	}

	fmt.Fprintf(w, " Comparing against snapshot #%d (%s)\n\n",
		diff.Previous.ID, output.Ago(diff.Previous.TakenAt))

	tbl := output.NewTable("Project", "Metric", "Previous", "Current", "Delta", "Trend")
	for _, d := range diff.Deltas {
		trend := trendArrow(d.Name, d.Delta)
		if d.Direction == store.DirectionNew {
			trend = output.StyleMuted.Render("new")
		}
		tbl.AddRow(projectLabel(d.Project), metricShortName(d.Name),
			fmt.Sprintf("%.1f", d.Previous), fmt.Sprintf("%.1f", d.Current),
			fmt.Sprintf("%+.1f", d.Delta), trend)
	}
	fmt.Fprint(w, tbl.Render())
}

func projectLabel(p string) string {
	if p == store.AggregateProject {
		return "(all)"
	}
	return p
}

// renderHistory shows the aggregate metrics of the last n snapshots, oldest
// first.
func renderHistory(w io.Writer, db *store.DB, n int) error {
	snapshots, err := db.ListSnapshots(n)
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	slices.Reverse(snapshots)

	type snapshotMetrics struct {
		Snapshot store.Snapshot       `json:"snapshot"`
		Metrics  []store.ReportMetric `json:"metrics"`
	}
	timeline := make([]snapshotMetrics, 0, len(snapshots))
	for _, s := range snapshots {
		metrics, err := db.GetReportMetrics(s.ID)
		if err != nil {
			return fmt.Errorf("loading metrics for snapshot #%d: %w", s.ID, err)
		}
		timeline = append(timeline, snapshotMetrics{Snapshot: s, Metrics: metrics})
	}

	if flagJSON {
		return writeJSON(w, map[string]any{"history": timeline})
	}

	if len(timeline) == 0 {
		fmt.Fprintln(w, " No snapshots found. Run 'feedbackwatch track' to create one.")
		return nil
	}

	fmt.Fprintln(w, output.Section("Track: Metric History"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " Showing %d most recent snapshots (all projects)\n\n", len(timeline))

	headers := []string{"Metric"}
	for _, sm := range timeline {
		headers = append(headers, fmt.Sprintf("#%d %s", sm.Snapshot.ID, sm.Snapshot.TakenAt.Local().Format("Jan 02")))
	}
	headers = append(headers, "Trend")
	tbl := output.NewTable(headers...)

	for _, name := range metricDisplayOrder {
		row := []string{metricShortName(name)}
		var vals []float64
		found := false
		for _, sm := range timeline {
			v := 0.0
			for _, m := range sm.Metrics {
				if m.Project == store.AggregateProject && m.MetricName == name {
					v = m.MetricValue
					found = true
				}
			}
			vals = append(vals, v)
			row = append(row, fmt.Sprintf("%.1f", v))
		}
		if !found {
			continue
		}

		trend := ""
		if len(vals) >= 2 {
			trend = trendArrow(name, vals[len(vals)-1]-vals[0])
		}
		tbl.AddRow(append(row, trend)...)
	}
	fmt.Fprint(w, tbl.Render())
	return nil
}
