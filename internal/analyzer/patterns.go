package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

// Patterns looks for recurring problems in a project's event log and
// auto-terminated session snapshots.
func (a *Analyzer) Patterns(project string) (PatternReport, error) {
	if !a.src.ProjectExists(project) {
		return PatternReport{}, fmt.Errorf("%s: %w", project, ErrProjectNotFound)
	}
	report := PatternReport{
		ProjectName:         project,
		RecentInterruptions: []Interruption{},
		FeedbackCategories:  []Count{},
		EndReasons:          []Count{},
		TopRiskIndicators:   []Count{},
	}

	events, _, err := a.src.LoadEvents(project)
	if err != nil {
		return PatternReport{}, fmt.Errorf("loading events for %s: %w", project, err)
	}
	var interruptions []Interruption
	categories := make(map[string]int)
	for _, e := range events {
		switch p := e.Data.(type) {
		case session.InterruptedPayload:
			reason := p.Reason
			if reason == "" {
				reason = "unknown"
			}
			interruptions = append(interruptions, Interruption{Time: e.Timestamp, SessionID: e.SessionID, Reason: reason})
		case session.FeedbackPayload:
			cat := p.Category
			if cat == "" {
				cat = "unknown"
			}
			categories[cat]++
		}
	}
	report.TotalInterruptions = len(interruptions)
	if start := len(interruptions) - RecentInterruptionsLimit; start > 0 {
		interruptions = interruptions[start:]
	}
	report.RecentInterruptions = append(report.RecentInterruptions, interruptions...)
	report.FeedbackCategories = rank(categories, 0)

	records, _, err := a.src.LoadSessions(project)
	if err != nil {
		return PatternReport{}, fmt.Errorf("loading sessions for %s: %w", project, err)
	}
	reasons := make(map[string]int)
	indicators := make(map[string]int)
	for _, r := range records {
		if !r.AutoTerminated {
			continue
		}
		report.AutoTerminated++
		reason := r.EndReason
		if reason == "" {
			reason = "unknown"
		}
		reasons[reason]++
		for _, ind := range r.RiskIndicators {
			indicators[ind]++
		}
	}
	report.EndReasons = rank(reasons, 0)
	report.TopRiskIndicators = rank(indicators, TopRiskIndicatorsLimit)
	return report, nil
}

// Overview analyzes every project concurrently and combines the results.
// Projects without sessions count toward Projects but not the totals.
func (a *Analyzer) Overview(ctx context.Context) (Overview, error) {
	names, err := a.src.ListProjects()
	if err != nil {
		return Overview{}, err
	}
	ov := Overview{Projects: len(names), Categories: []string{}, Reports: []ProjectReport{}}

	var mu sync.Mutex
	reports := make(map[string]ProjectReport, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := a.Analyze(name)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			reports[name] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	var weighted float64
	seen := make(map[string]bool)
	for _, name := range names {
		r, ok := reports[name]
		if !ok {
			continue
		}
		ov.ProjectsWithSessions++
		ov.TotalSessions += r.TotalSessions
		ov.AutoTerminatedSessions += r.AutoTerminatedSessions
		weighted += r.AverageDurationSeconds * float64(r.TotalSessions)
		for c := range r.CategoryDistribution {
			if !seen[c] {
				seen[c] = true
				ov.Categories = append(ov.Categories, c)
			}
		}
		ov.Reports = append(ov.Reports, r)
	}
	sort.Strings(ov.Categories)
	if ov.TotalSessions > 0 {
		ov.AutoTerminationRate = float64(ov.AutoTerminatedSessions) / float64(ov.TotalSessions)
		ov.AverageDurationSeconds = weighted / float64(ov.TotalSessions)
	}
	return ov, nil
}

// rank orders counts descending, ties by name. A limit of 0 keeps all.
func rank(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
