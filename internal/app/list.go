package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects with session logs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	listing, err := newAnalyzer().ListProjectsWithCounts()
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}

	if flagJSON {
		return writeJSON(w, map[string]any{"log_dir": cfg.LogDir, "projects": listing})
	}

	fmt.Fprintln(w, output.Section("Projects"))
	fmt.Fprintln(w)
	if len(listing) == 0 {
		fmt.Fprintf(w, " No projects found in %s.\n", cfg.LogDir)
		return nil
	}

	tbl := output.NewTable("Project", "Sessions", "Summary Log")
	for _, p := range listing {
		has := output.StyleMuted.Render("none")
		if p.HasSummary {
			has = output.StyleSuccess.Render("yes")
		}
		tbl.AddRow(p.Name, output.Count(p.Sessions), has)
	}
	fmt.Fprint(w, tbl.Render())
	return nil
}
