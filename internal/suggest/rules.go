package suggest

import (
	"fmt"
	"sort"

	"github.com/blackwell-systems/feedbackwatch/internal/store"
)

// minSessions is the sample size below which rate-based rules stay quiet.
const minSessions = 3

// Rule thresholds.
const (
	autoTerminationThreshold  = 0.3
	highRiskThreshold         = 0.2
	recurringRiskMin          = 3
	interruptionsPerSession   = 1.0
	shortSessionSeconds       = 60.0
	unusedFeedbackMinSessions = 5
)

// HighAutoTermination flags projects where sessions often end without the
// user closing them.
func HighAutoTermination(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.Sessions < minSessions || p.AutoTerminationRate < autoTerminationThreshold {
			continue
		}
		priority := PriorityHigh
		if p.AutoTerminationRate >= 0.5 {
			priority = PriorityCritical
		}
		reason := ""
		if p.TopEndReason != "" {
			reason = fmt.Sprintf(" Most common reason: %s.", p.TopEndReason)
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryTermination,
			Priority: priority,
			Project:  p.Name,
			Title:    fmt.Sprintf("Reduce auto-terminated sessions in %s", p.Name),
			Description: fmt.Sprintf(
				"%d of %d sessions in %q (%.0f%%) were ended automatically.%s "+
					"Call end_monitoring when work is done and keep the feedback loop "+
					"active so sessions are not cut off by timeouts or risk checks.",
				p.AutoTerminated, p.Sessions, p.Name, p.AutoTerminationRate*100, reason,
			),
			ImpactScore: ComputeImpact(p.AutoTerminated, p.AutoTerminationRate, 5.0, 10.0),
		})
	}
	return suggestions
}

// HighRiskProjects flags projects where many sessions raised more risk
// indicators than the configured threshold.
func HighRiskProjects(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.Sessions < minSessions || p.HighRiskRate < highRiskThreshold {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryRisk,
			Priority: PriorityHigh,
			Project:  p.Name,
			Title:    fmt.Sprintf("High-risk sessions in %s", p.Name),
			Description: fmt.Sprintf(
				"%d of %d sessions in %q (%.0f%%) were high-risk. Review the risk "+
					"indicators with 'feedbackwatch patterns -p %s' and check in with "+
					"the user more often during long responses.",
				p.HighRiskSessions, p.Sessions, p.Name, p.HighRiskRate*100, p.Name,
			),
			ImpactScore: ComputeImpact(p.HighRiskSessions, p.HighRiskRate, 4.0, 10.0),
		})
	}
	return suggestions
}

// RecurringRiskIndicator flags a single indicator that keeps showing up in
// auto-terminated sessions.
func RecurringRiskIndicator(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.TopRiskIndicator == "" || p.TopRiskCount < recurringRiskMin {
			continue
		}
		frequency := 1.0
		if p.AutoTerminated > 0 {
			frequency = min(float64(p.TopRiskCount)/float64(p.AutoTerminated), 1.0)
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryRisk,
			Priority: PriorityMedium,
			Project:  p.Name,
			Title:    fmt.Sprintf("Recurring risk indicator in %s: %s", p.Name, p.TopRiskIndicator),
			Description: fmt.Sprintf(
				"Indicator %q appeared %d times across auto-terminated sessions of %q. "+
					"Address the behaviour behind it before it ends more sessions.",
				p.TopRiskIndicator, p.TopRiskCount, p.Name,
			),
			ImpactScore: ComputeImpact(p.TopRiskCount, frequency, 3.0, 10.0),
		})
	}
	return suggestions
}

// InterruptionPattern flags projects averaging more than one user
// interruption per session.
func InterruptionPattern(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.Sessions == 0 {
			continue
		}
		avg := float64(p.Interruptions) / float64(p.Sessions)
		if avg <= interruptionsPerSession {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryFriction,
			Priority: PriorityMedium,
			Project:  p.Name,
			Title:    fmt.Sprintf("Frequent interruptions in %s", p.Name),
			Description: fmt.Sprintf(
				"Project %q averages %.1f interruptions per session across %d sessions. "+
					"Frequent course corrections suggest the assistant diverges from what the "+
					"user expects; ask for feedback earlier in each task.",
				p.Name, avg, p.Sessions,
			),
			ImpactScore: ComputeImpact(p.Sessions, min(avg/3, 1.0), 3.0, 15.0),
		})
	}
	return suggestions
}

// UnusedFeedback flags projects with several sessions but no interactive
// feedback calls at all.
func UnusedFeedback(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.Sessions < unusedFeedbackMinSessions || p.FeedbackCategories > 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryAdoption,
			Priority: PriorityMedium,
			Project:  p.Name,
			Title:    fmt.Sprintf("No interactive feedback in %s", p.Name),
			Description: fmt.Sprintf(
				"None of the %d sessions in %q recorded an interactive feedback call. "+
					"Use record_feedback_call or track_interactive_feedback so sessions "+
					"are categorised and quality scores reflect the feedback loop.",
				p.Sessions, p.Name,
			),
			ImpactScore: ComputeImpact(p.Sessions, 0.5, 2.0, 5.0),
		})
	}
	return suggestions
}

// ShortSessions flags projects whose sessions end within a minute on average.
func ShortSessions(ctx *AnalysisContext) []Suggestion {
	var suggestions []Suggestion
	for _, p := range ctx.Projects {
		if p.Sessions < unusedFeedbackMinSessions || p.AvgDurationSeconds >= shortSessionSeconds {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Category: CategoryFriction,
			Priority: PriorityLow,
			Project:  p.Name,
			Title:    fmt.Sprintf("Very short sessions in %s", p.Name),
			Description: fmt.Sprintf(
				"Sessions in %q last %.0f seconds on average with %.1f user messages. "+
					"Check that monitoring is not being restarted for every message.",
				p.Name, p.AvgDurationSeconds, p.AvgUserMessages,
			),
			ImpactScore: ComputeImpact(p.Sessions, 0.3, 1.0, 5.0),
		})
	}
	return suggestions
}

// MetricRegression flags aggregate history metrics whose last change went the
// wrong way.
func MetricRegression(ctx *AnalysisContext) []Suggestion {
	names := make([]string, 0, len(ctx.MetricTrends))
	for name, trend := range ctx.MetricTrends {
		if trend == store.DirectionRegressed {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var suggestions []Suggestion
	for _, name := range names {
		suggestions = append(suggestions, Suggestion{
			Category: CategoryTrend,
			Priority: PriorityMedium,
			Title:    fmt.Sprintf("Regression in %s", name),
			Description: fmt.Sprintf(
				"Metric %q moved in the wrong direction since the previous snapshot. "+
					"Run 'feedbackwatch track --history' to see when it started.",
				name,
			),
			ImpactScore: ComputeImpact(ctx.TotalSessions, 0.5, 3.0, 10.0),
		})
	}
	return suggestions
}
