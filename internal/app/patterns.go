package app

import (
	"github.com/spf13/cobra"
)

var patternsProject string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show interruption and risk patterns for a project",
	Args:  cobra.NoArgs,
	RunE:  runPatterns,
}

func init() {
	patternsCmd.Flags().StringVarP(&patternsProject, "project", "p", "", "Project name")
	_ = patternsCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	p, err := newAnalyzer().Patterns(patternsProject)
	if notFound(w, patternsProject, err) {
		return nil
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return writeJSON(w, p)
	}
	renderPatterns(w, p)
	return nil
}
