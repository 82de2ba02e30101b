package suggest

// Engine runs all registered rules against an AnalysisContext and collects
// the resulting suggestions.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the built-in rules. Extra rules run after
// them.
func NewEngine(extra ...Rule) *Engine {
	rules := []Rule{
		HighAutoTermination,
		HighRiskProjects,
		RecurringRiskIndicator,
		InterruptionPattern,
		UnusedFeedback,
		ShortSessions,
		MetricRegression,
	}
	return &Engine{rules: append(rules, extra...)}
}

// Run executes all registered rules against the given context and returns
// the collected suggestions sorted by impact score (highest first).
func (e *Engine) Run(ctx *AnalysisContext) []Suggestion {
	if ctx == nil {
		return nil
	}
	var all []Suggestion
	for _, rule := range e.rules {
		all = append(all, rule(ctx)...)
	}
	return RankSuggestions(all)
}
