package watcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
)

// HighRiskAlertRate is the high-risk session rate that raises a critical alert
// when a project crosses it.
const HighRiskAlertRate = 0.5

// Compare detects notable changes between two states and returns alerts,
// ordered by project name.
func Compare(prev, curr *State, now time.Time) []Alert {
	projects := make([]string, 0, len(curr.Reports))
	for p := range curr.Reports {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	var alerts []Alert
	for _, p := range projects {
		c := curr.Reports[p]
		old, known := prev.Reports[p]
		if !known {
			alerts = append(alerts, Alert{
				Level:   "info",
				Project: p,
				Title:   fmt.Sprintf("New project: %s", p),
				Message: fmt.Sprintf("%d session(s) recorded", c.TotalSessions),
				Time:    now,
			})
		}
		alerts = append(alerts, compareReports(p, old, c, now)...)
	}
	return alerts
}

func compareReports(project string, prev, curr analyzer.ProjectReport, now time.Time) []Alert {
	var alerts []Alert

	if curr.HighRiskRate >= HighRiskAlertRate && prev.HighRiskRate < HighRiskAlertRate && curr.TotalSessions > 0 {
		alerts = append(alerts, Alert{
			Level:   "critical",
			Project: project,
			Title:   fmt.Sprintf("High-risk sessions: %s", project),
			Message: fmt.Sprintf("%.0f%% of sessions exceed %d risk indicators (%d of %d)",
				curr.HighRiskRate*100, analyzer.HighRiskThreshold, curr.HighRiskSessions, curr.TotalSessions),
			Time: now,
		})
	}

	if n := curr.AutoTerminatedSessions - prev.AutoTerminatedSessions; n > 0 {
		reason := ""
		if len(curr.RecentSessions) > 0 {
			last := curr.RecentSessions[len(curr.RecentSessions)-1]
			if last.AutoTerminated {
				reason = fmt.Sprintf(" (last: %s)", last.EndReason)
			}
		}
		alerts = append(alerts, Alert{
			Level:   "warning",
			Project: project,
			Title:   fmt.Sprintf("Auto-terminated session: %s", project),
			Message: fmt.Sprintf("%d new auto-terminated session(s)%s, rate now %.0f%%",
				n, reason, curr.AutoTerminationRate*100),
			Time: now,
		})
	}

	return alerts
}
