package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
)

var (
	analyzeProject  string
	analyzeDetailed bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report on one project's finished sessions",
	Long: `Aggregate a project's session summaries: auto-termination and high-risk
rates, averages, feedback categories and the most recent sessions.
--detailed adds interruption and risk patterns from the event log.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeProject, "project", "p", "", "Project name")
	analyzeCmd.Flags().BoolVar(&analyzeDetailed, "detailed", false, "Include interruption and risk patterns")
	_ = analyzeCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	an := newAnalyzer()

	report, err := an.Analyze(analyzeProject)
	if notFound(w, analyzeProject, err) {
		return nil
	}
	if err != nil {
		return err
	}

	var patterns *analyzer.PatternReport
	if analyzeDetailed {
		p, err := an.Patterns(analyzeProject)
		if err != nil {
			return err
		}
		patterns = &p
	}

	if flagJSON {
		result := map[string]any{"report": report}
		if patterns != nil {
			result["patterns"] = patterns
		}
		return writeJSON(w, result)
	}

	renderReport(w, report)
	if patterns != nil {
		renderPatterns(w, *patterns)
	}
	return nil
}

func renderReport(w io.Writer, r analyzer.ProjectReport) {
	fmt.Fprintln(w, output.Section("Project: "+r.ProjectName))
	fmt.Fprintln(w)

	row := func(label, value string) {
		fmt.Fprintf(w, " %s%s\n", output.StyleLabel.Render(label), output.StyleValue.Render(value))
	}
	row("Sessions", output.Count(r.TotalSessions))
	row("Auto-terminated", fmt.Sprintf("%d (%s)", r.AutoTerminatedSessions, output.Percent(r.AutoTerminationRate)))
	row("High-risk sessions", fmt.Sprintf("%d (%s)", r.HighRiskSessions, output.RiskStyled(r.HighRiskRate)))
	row("Avg duration", output.Minutes(r.AverageDurationSeconds))
	row("Avg user messages", fmt.Sprintf("%.1f", r.AverageUserMessages))
	row("Avg tool calls", fmt.Sprintf("%.1f", r.AverageToolCalls))
	if r.SkippedLines > 0 {
		row("Malformed lines skipped", output.StyleWarning.Render(output.Count(r.SkippedLines)))
	}

	if len(r.CategoryDistribution) > 0 {
		fmt.Fprintln(w, output.Section("Feedback Categories"))
		fmt.Fprintln(w)
		tbl := output.NewTable("Category", "Sessions")
		for _, c := range sortedCounts(r.CategoryDistribution) {
			tbl.AddRow(c.Name, output.Count(c.Count))
		}
		fmt.Fprint(w, tbl.Render())
	}

	if len(r.RecentSessions) > 0 {
		fmt.Fprintln(w, output.Section("Recent Sessions"))
		fmt.Fprintln(w)
		tbl := output.NewTable("Session", "Started", "Duration", "Msgs", "Tools", "Risks", "End")
		for _, s := range r.RecentSessions {
			end := s.EndReason
			if s.AutoTerminated {
				end = output.StyleWarning.Render(end)
			}
			tbl.AddRow(shortID(s.SessionID), output.Ago(s.StartTime.Time), output.Minutes(s.DurationSeconds),
				output.Count(s.UserMessages), output.Count(s.ToolCalls), output.Count(s.RiskIndicatorsCount), end)
		}
		fmt.Fprint(w, tbl.Render())
	}
}

func renderPatterns(w io.Writer, p analyzer.PatternReport) {
	fmt.Fprintln(w, output.Section("Interruptions"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " %d total\n", p.TotalInterruptions)
	for _, in := range p.RecentInterruptions {
		fmt.Fprintf(w, "   %s  %s  %s\n", in.Time.Format("2006-01-02 15:04"), shortID(in.SessionID), in.Reason)
	}

	if len(p.FeedbackCategories) > 0 {
		fmt.Fprintln(w, output.Section("Feedback Calls by Category"))
		fmt.Fprintln(w)
		renderCounts(w, "Category", p.FeedbackCategories)
	}

	fmt.Fprintln(w, output.Section(fmt.Sprintf("Auto-terminated Sessions (%d)", p.AutoTerminated)))
	fmt.Fprintln(w)
	if p.AutoTerminated == 0 {
		fmt.Fprintln(w, output.StyleMuted.Render(" none"))
		return
	}
	renderCounts(w, "End reason", p.EndReasons)
	if len(p.TopRiskIndicators) > 0 {
		fmt.Fprintln(w)
		renderCounts(w, "Risk indicator", p.TopRiskIndicators)
	}
}

func renderCounts(w io.Writer, header string, counts []analyzer.Count) {
	tbl := output.NewTable(header, "Count")
	for _, c := range counts {
		tbl.AddRow(c.Name, output.Count(c.Count))
	}
	fmt.Fprint(w, tbl.Render())
}

// sortedCounts orders a distribution by descending count, then name.
func sortedCounts(m map[string]int) []analyzer.Count {
	out := make([]analyzer.Count, 0, len(m))
	for name, n := range m {
		out = append(out, analyzer.Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// joinOrNone joins names, or returns "none" for an empty list.
func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
