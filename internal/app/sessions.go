package app

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/session"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
	"github.com/blackwell-systems/feedbackwatch/internal/tracker"
)

var (
	sessionsProject string
	sessionsSort    string
	sessionsLimit   int
	sessionsWorst   bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List and inspect a project's session snapshots",
	Long: `Browse the session snapshots of one project with their quality scores.
Pass a session ID or ID prefix to inspect a single session.

Examples:
  feedbackwatch sessions -p api                # most recent first
  feedbackwatch sessions -p api --worst        # lowest quality first
  feedbackwatch sessions -p api --sort risk    # most risk indicators first
  feedbackwatch sessions -p api 3f9a1c         # inspect one session`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsProject, "project", "p", "", "Project name")
	sessionsCmd.Flags().StringVar(&sessionsSort, "sort", "recent", "Sort by: recent, quality, risk, duration, feedback")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 15, "Maximum sessions to display")
	sessionsCmd.Flags().BoolVar(&sessionsWorst, "worst", false, "Shortcut for --sort quality")
	_ = sessionsCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(sessionsCmd)
}

// sessionRow pairs a snapshot with its quality score.
type sessionRow struct {
	Record  session.Record        `json:"session"`
	Quality tracker.QualityReport `json:"quality"`
}

func runSessions(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	records, _, err := newStore().LoadSessions(sessionsProject)
	if errors.Is(err, storage.ErrProjectNotExist) {
		fmt.Fprintf(w, " No logs found for project %q in %s.\n", sessionsProject, cfg.LogDir)
		return nil
	}
	if err != nil {
		return err
	}

	rows := make([]sessionRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, sessionRow{Record: r, Quality: tracker.Score(r)})
	}

	if len(args) == 1 {
		row, err := findSession(rows, args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return writeJSON(w, row)
		}
		renderInspect(w, row)
		return nil
	}

	if len(rows) == 0 {
		fmt.Fprintf(w, " Project %q has no session snapshots.\n", sessionsProject)
		return nil
	}

	sortKey := sessionsSort
	if sessionsWorst {
		sortKey = "quality"
	}
	sortSessions(rows, sortKey)
	if sessionsLimit > 0 && len(rows) > sessionsLimit {
		rows = rows[:sessionsLimit]
	}

	if flagJSON {
		return writeJSON(w, rows)
	}
	renderSessions(w, rows, sortKey)
	return nil
}

// findSession matches a full session ID or a unique prefix.
func findSession(rows []sessionRow, prefix string) (sessionRow, error) {
	var matched *sessionRow
	for i := range rows {
		if !strings.HasPrefix(rows[i].Record.SessionID, prefix) {
			continue
		}
		if rows[i].Record.SessionID == prefix {
			return rows[i], nil
		}
		if matched != nil {
			return sessionRow{}, fmt.Errorf("ambiguous session prefix %q, use more characters", prefix)
		}
		matched = &rows[i]
	}
	if matched == nil {
		return sessionRow{}, fmt.Errorf("no session found matching %q", prefix)
	}
	return *matched, nil
}

func sortSessions(rows []sessionRow, key string) {
	switch key {
	case "quality":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Quality.Score < rows[j].Quality.Score
		})
	case "risk":
		sort.SliceStable(rows, func(i, j int) bool {
			return len(rows[i].Record.RiskIndicators) > len(rows[j].Record.RiskIndicators)
		})
	case "duration":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Record.DurationSeconds > rows[j].Record.DurationSeconds
		})
	case "feedback":
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Record.InteractiveFeedbackCalls > rows[j].Record.InteractiveFeedbackCalls
		})
	default: // "recent"
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Record.StartTime.After(rows[j].Record.StartTime.Time)
		})
	}
}

func renderSessions(w io.Writer, rows []sessionRow, sortKey string) {
	fmt.Fprintln(w, output.Section("Sessions: "+sessionsProject))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " %s  sorted by %s\n\n",
		output.StyleMuted.Render(fmt.Sprintf("%d sessions", len(rows))),
		output.StyleBold.Render(sortKey))

	tbl := output.NewTable("ID", "Started", "Duration", "Messages", "Feedback", "Risks", "Quality", "Status")
	for _, r := range rows {
		rec := r.Record
		risks := fmt.Sprintf("%d", len(rec.RiskIndicators))
		if len(rec.RiskIndicators) > cfg.HighRiskThreshold {
			risks = output.StyleWarning.Render(risks)
		}
		tbl.AddRow(
			shortID(rec.SessionID),
			rec.StartTime.Format("Jan 02 15:04"),
			output.Minutes(rec.DurationSeconds),
			fmt.Sprintf("%d/%d", rec.UserMessagesCount, rec.AIResponsesCount),
			fmt.Sprintf("%d", rec.InteractiveFeedbackCalls),
			risks,
			fmt.Sprintf("%d %s", r.Quality.Score, r.Quality.Level),
			sessionStatus(rec),
		)
	}
	fmt.Fprint(w, tbl.Render())
	fmt.Fprintln(w)
}

func sessionStatus(r session.Record) string {
	switch {
	case !r.SessionEnded:
		return output.StyleSuccess.Render("open")
	case r.AutoTerminated:
		return output.StyleWarning.Render(r.EndReason)
	}
	return r.EndReason
}

// renderInspect prints a detailed single-session view.
func renderInspect(w io.Writer, r sessionRow) {
	rec := r.Record
	label := func(l, v string) {
		fmt.Fprintf(w, " %s  %s\n", output.StyleLabel.Render(l), output.StyleBold.Render(v))
	}
	muted := func(l, v string) {
		fmt.Fprintf(w, " %s  %s\n", output.StyleLabel.Render(l), output.StyleMuted.Render(v))
	}

	fmt.Fprintln(w, output.Section("Session Inspect"))
	fmt.Fprintln(w)
	label("Session ID", rec.SessionID)
	label("Project", rec.ProjectName)
	label("Project Path", rec.ProjectPath)
	label("Branch", rec.GitBranch)
	label("Started", rec.StartTime.Format("2006-01-02 15:04:05"))
	label("Last activity", output.Ago(rec.LastActivityTime.Time))
	label("Duration", output.Minutes(rec.DurationSeconds))
	label("Status", sessionStatus(rec))
	fmt.Fprintln(w)

	fmt.Fprintln(w, output.Section("Interaction"))
	fmt.Fprintln(w)
	muted("User messages", fmt.Sprintf("%d (%s chars)", rec.UserMessagesCount, output.Count(rec.TotalUserChars)))
	muted("AI responses", fmt.Sprintf("%d (%s chars)", rec.AIResponsesCount, output.Count(rec.TotalAIChars)))
	muted("Tool calls", fmt.Sprintf("%d", rec.ToolCallsCount))
	muted("Feedback calls", fmt.Sprintf("%d", rec.InteractiveFeedbackCalls))
	muted("Code blocks", fmt.Sprintf("%d", rec.CodeBlocksCount))
	muted("Images pasted", fmt.Sprintf("%d", rec.ImagesPastedCount))
	muted("Files operated", fmt.Sprintf("%d", rec.FilesOperatedCount))
	muted("Interaction types", joinOrNone(rec.InteractionTypes))
	muted("Categories", joinOrNone(rec.SessionCategories))
	fmt.Fprintln(w)

	fmt.Fprintln(w, output.Section("Quality"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " %s  %s %s\n", output.StyleLabel.Render("Score"),
		output.ScoreBar(r.Quality.Score, 20), r.Quality.Level)
	muted("Factors", joinOrNone(r.Quality.Factors))
	risks := joinOrNone(rec.RiskIndicators)
	if len(rec.RiskIndicators) > 0 {
		risks = output.StyleWarning.Render(risks)
	}
	fmt.Fprintf(w, " %s  %s\n", output.StyleLabel.Render("Risk indicators"), risks)
	fmt.Fprintln(w)
}
