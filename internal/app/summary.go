package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/output"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Overview of every project",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	ov, err := newAnalyzer().Overview(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return writeJSON(w, ov)
	}

	fmt.Fprintln(w, output.Section("feedbackwatch "+appVersion))
	fmt.Fprintln(w)
	if ov.Projects == 0 {
		fmt.Fprintf(w, " No session logs in %s yet.\n", cfg.LogDir)
		fmt.Fprintln(w, " Start the tool server with 'feedbackwatch mcp' to begin recording.")
		return nil
	}

	row := func(label, value string) {
		fmt.Fprintf(w, " %s%s\n", output.StyleLabel.Render(label), output.StyleValue.Render(value))
	}
	row("Projects", fmt.Sprintf("%d (%d with sessions)", ov.Projects, ov.ProjectsWithSessions))
	row("Sessions", output.Count(ov.TotalSessions))
	row("Auto-terminated", fmt.Sprintf("%d (%s)", ov.AutoTerminatedSessions, output.Percent(ov.AutoTerminationRate)))
	row("Avg duration", output.Minutes(ov.AverageDurationSeconds))
	row("Categories", joinOrNone(ov.Categories))

	if len(ov.Reports) > 0 {
		fmt.Fprintln(w)
		tbl := output.NewTable("Project", "Sessions", "Auto-term", "High-risk", "Last Session")
		for _, r := range ov.Reports {
			last := "never"
			if n := len(r.RecentSessions); n > 0 {
				last = output.Ago(r.RecentSessions[n-1].StartTime.Time)
			}
			tbl.AddRow(r.ProjectName, output.Count(r.TotalSessions),
				output.Percent(r.AutoTerminationRate), output.RiskStyled(r.HighRiskRate), last)
		}
		fmt.Fprint(w, tbl.Render())
	}
	return nil
}
