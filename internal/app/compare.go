package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/output"
)

var compareProjects []string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare reports across projects",
	Long: `Analyze several projects side by side. Projects without logs or
sessions are listed separately instead of failing the comparison.

Examples:
  feedbackwatch compare -p api -p web
  feedbackwatch compare            # every project`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringArrayVarP(&compareProjects, "project", "p", nil, "Project name (repeatable; default: all projects)")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	an := newAnalyzer()

	projects := compareProjects
	if len(projects) == 0 {
		all, err := an.ListProjects()
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		projects = all
	}

	reports, missing, err := an.Compare(projects)
	if err != nil {
		return err
	}

	if flagJSON {
		if missing == nil {
			missing = []string{}
		}
		return writeJSON(w, map[string]any{"reports": reports, "missing": missing})
	}

	fmt.Fprintln(w, output.Section("Project Comparison"))
	fmt.Fprintln(w)
	if len(reports) == 0 {
		fmt.Fprintln(w, " No project has finished sessions to compare.")
	} else {
		tbl := output.NewTable("Project", "Sessions", "Auto-term", "High-risk", "Avg Duration", "Avg Msgs", "Avg Tools")
		for _, r := range reports {
			tbl.AddRow(r.ProjectName, output.Count(r.TotalSessions),
				output.Percent(r.AutoTerminationRate), output.RiskStyled(r.HighRiskRate),
				output.Minutes(r.AverageDurationSeconds),
				fmt.Sprintf("%.1f", r.AverageUserMessages), fmt.Sprintf("%.1f", r.AverageToolCalls))
		}
		fmt.Fprint(w, tbl.Render())
	}
	if len(missing) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, " %s %s\n", output.StyleMuted.Render("No data:"), joinOrNone(missing))
	}
	return nil
}
