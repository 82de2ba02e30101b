package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

var (
	pruneDays    int
	pruneProject string
	pruneHistory bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old session snapshots",
	Long: `Delete per-session snapshot files (session_<id>.json) older than --days.
Event and summary logs are append-only and never pruned. --history also
removes report snapshots of the same age from the history database.

Examples:
  feedbackwatch prune --days 30 -p api
  feedbackwatch prune --days 90 --history   # every project`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 30, "Delete snapshots older than this many days")
	pruneCmd.Flags().StringVarP(&pruneProject, "project", "p", "", "Project name (default: all projects)")
	pruneCmd.Flags().BoolVar(&pruneHistory, "history", false, "Also prune the report history database")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneDays < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", pruneDays)
	}
	w := cmd.OutOrStdout()
	cutoff := time.Now().AddDate(0, 0, -pruneDays)
	st := newStore()

	projects := []string{pruneProject}
	if pruneProject == "" {
		all, err := st.ListProjects()
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		projects = all
	}

	removed := map[string]int{}
	total := 0
	for _, p := range projects {
		n, err := st.Prune(p, cutoff)
		if errors.Is(err, storage.ErrProjectNotExist) {
			fmt.Fprintf(w, " No logs found for project %q in %s.\n", p, cfg.LogDir)
			continue
		}
		if err != nil {
			return fmt.Errorf("pruning %s: %w", p, err)
		}
		removed[p] = n
		total += n
	}

	var snapshots int64
	if pruneHistory {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if snapshots, err = db.DeleteSnapshotsBefore(cutoff); err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
	}

	if flagJSON {
		return writeJSON(w, map[string]any{
			"cutoff":            cutoff.Format(time.RFC3339),
			"removed":           removed,
			"history_snapshots": snapshots,
		})
	}
	fmt.Fprintf(w, " Removed %d session snapshot(s) older than %d days", total, pruneDays)
	if pruneHistory {
		fmt.Fprintf(w, " and %d history snapshot(s)", snapshots)
	}
	fmt.Fprintln(w, ".")
	return nil
}
