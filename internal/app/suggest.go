package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/store"
	"github.com/blackwell-systems/feedbackwatch/internal/suggest"
)

var (
	suggestLimit    int
	suggestCategory string
	suggestProject  string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Generate ranked improvement recommendations",
	Long: `Analyze every project's session logs, plus the report history when
'track' has been run, and print actionable recommendations ranked by
impact score.`,
	Args: cobra.NoArgs,
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 10, "Maximum number of suggestions to show")
	suggestCmd.Flags().StringVar(&suggestCategory, "category", "",
		"Filter by category (termination, risk, friction, adoption, trend)")
	suggestCmd.Flags().StringVarP(&suggestProject, "project", "p", "", "Only show suggestions for this project")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	actx, err := buildAnalysisContext(cmd.Context(), newAnalyzer(), config.DBPath())
	if err != nil {
		return fmt.Errorf("building analysis context: %w", err)
	}

	suggestions := suggest.NewEngine().Run(actx)
	suggestions = filterSuggestions(suggestions, suggestCategory, suggestProject)
	if suggestLimit > 0 && len(suggestions) > suggestLimit {
		suggestions = suggestions[:suggestLimit]
	}

	if flagJSON {
		if suggestions == nil {
			suggestions = []suggest.Suggestion{}
		}
		return writeJSON(w, suggestions)
	}
	renderSuggestions(w, suggestions)
	return nil
}

// buildAnalysisContext gathers per-project reports and patterns, and the
// direction of the last aggregate history change when dbPath exists.
func buildAnalysisContext(ctx context.Context, an *analyzer.Analyzer, dbPath string) (*suggest.AnalysisContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ov, err := an.Overview(ctx)
	if err != nil {
		return nil, err
	}

	actx := &suggest.AnalysisContext{
		TotalSessions: ov.TotalSessions,
		MetricTrends:  map[string]string{},
	}
	for _, r := range ov.Reports {
		pc := suggest.ProjectContext{
			Name:                r.ProjectName,
			Sessions:            r.TotalSessions,
			AutoTerminated:      r.AutoTerminatedSessions,
			AutoTerminationRate: r.AutoTerminationRate,
			HighRiskSessions:    r.HighRiskSessions,
			HighRiskRate:        r.HighRiskRate,
			AvgDurationSeconds:  r.AverageDurationSeconds,
			AvgUserMessages:     r.AverageUserMessages,
			FeedbackCategories:  len(r.CategoryDistribution),
		}
		p, err := an.Patterns(r.ProjectName)
		if err != nil {
			return nil, err
		}
		pc.Interruptions = p.TotalInterruptions
		if len(p.EndReasons) > 0 {
			pc.TopEndReason = p.EndReasons[0].Name
		}
		if len(p.TopRiskIndicators) > 0 {
			pc.TopRiskIndicator = p.TopRiskIndicators[0].Name
			pc.TopRiskCount = p.TopRiskIndicators[0].Count
		}
		actx.Projects = append(actx.Projects, pc)
	}

	trends, err := historyTrends(dbPath)
	if err != nil {
		return nil, err
	}
	for name, dir := range trends {
		actx.MetricTrends[name] = dir
	}
	return actx, nil
}

// historyTrends returns the direction of each aggregate metric between the
// two most recent snapshots. A missing database yields no trends.
func historyTrends(dbPath string) (map[string]string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	curr, err := db.GetSnapshotN(1)
	if err != nil || curr == nil {
		return nil, err
	}
	prev, err := db.GetSnapshotN(2)
	if err != nil || prev == nil {
		return nil, err
	}
	diff, err := db.DiffSnapshots(prev, curr, higherIsBetter)
	if err != nil {
		return nil, err
	}
	trends := map[string]string{}
	for _, d := range diff.Deltas {
		if d.Project == store.AggregateProject {
			trends[d.Name] = d.Direction
		}
	}
	return trends, nil
}

func filterSuggestions(suggestions []suggest.Suggestion, category, project string) []suggest.Suggestion {
	var filtered []suggest.Suggestion
	for _, s := range suggestions {
		if category != "" && s.Category != category {
			continue
		}
		if project != "" && s.Project != project {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func renderSuggestions(w io.Writer, suggestions []suggest.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(w, output.Section("Suggestions"))
		fmt.Fprintln(w)
		fmt.Fprintln(w, " No suggestions. Sessions look healthy.")
		return
	}

	fmt.Fprintln(w, output.Section("Improvement Suggestions"))
	fmt.Fprintln(w)
	for i, s := range suggestions {
		fmt.Fprintf(w, " #%d %s %s\n", i+1, stylePriority(s.Priority, priorityToLabel(s.Priority)),
			output.StyleBold.Render(s.Title))
		fmt.Fprintf(w, "    Impact: %.1f  |  Category: %s\n", s.ImpactScore, s.Category)
		fmt.Fprintf(w, "    %s\n\n", s.Description)
	}
}

func priorityToLabel(priority int) string {
	switch priority {
	case suggest.PriorityCritical:
		return "[CRITICAL]"
	case suggest.PriorityHigh:
		return "[HIGH]"
	case suggest.PriorityMedium:
		return "[MEDIUM]"
	case suggest.PriorityLow:
		return "[LOW]"
	default:
		return "[UNKNOWN]"
	}
}

func stylePriority(priority int, label string) string {
	switch priority {
	case suggest.PriorityCritical, suggest.PriorityHigh:
		return output.StyleError.Render(label)
	case suggest.PriorityMedium:
		return output.StyleWarning.Render(label)
	default:
		return output.StyleMuted.Render(label)
	}
}
