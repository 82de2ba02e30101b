// Package risk classifies assistant text against fixed phrase categories that
// tend to precede a premature or unplanned end of a session.
package risk

import "strings"

// Category is a named, ordered list of literal phrases.
type Category struct {
	Name     string
	Patterns []string
}

// DefaultCategories is the fixed pattern table. Order matters: Scan reports
// identifiers category by category, pattern by pattern.
var DefaultCategories = []Category{
	{
		Name: "completion_language",
		Patterns: []string{
			"任务完成", "修复完成", "问题解决", "到此为止",
			"就这些了", "没有其他", "已经处理完毕", "都搞定了",
		},
	},
	{
		Name: "ending_phrases",
		Patterns: []string{
			"如果还有问题", "如果需要帮助", "如果有其他需求",
			"祝您使用愉快", "希望这能帮到您",
		},
	},
	{
		Name: "technical_completion",
		Patterns: []string{
			"测试通过", "代码提交", "功能正常", "部署成功",
			"验证完成", "检查无误",
		},
	},
}

// Matcher scans text for risk phrases. The zero value is not usable; use
// NewMatcher or Default.
//
// Matching is a plain case-insensitive substring test with no word-boundary
// checks, so a phrase embedded in a longer compound still matches.
type Matcher struct {
	categories []Category
	lowered    [][]string
}

var defaultMatcher = NewMatcher(DefaultCategories)

// Default returns the matcher built from DefaultCategories.
func Default() *Matcher {
	return defaultMatcher
}

// NewMatcher builds a matcher over the given categories. The input is copied.
func NewMatcher(categories []Category) *Matcher {
	m := &Matcher{
		categories: make([]Category, len(categories)),
		lowered:    make([][]string, len(categories)),
	}
	for i, c := range categories {
		patterns := append([]string(nil), c.Patterns...)
		m.categories[i] = Category{Name: c.Name, Patterns: patterns}
		m.lowered[i] = make([]string, len(patterns))
		for j, p := range patterns {
			m.lowered[i][j] = strings.ToLower(p)
		}
	}
	return m
}

// Scan returns the identifiers of every pattern found in text, in table order
// and without duplicates. Each identifier is "<category>_<pattern>" with spaces
// in the pattern replaced by underscores.
func (m *Matcher) Scan(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var hits []string
	seen := make(map[string]bool)
	for i, c := range m.categories {
		for j, p := range m.lowered[i] {
			if p == "" || !strings.Contains(lower, p) {
				continue
			}
			id := Identifier(c.Name, c.Patterns[j])
			if !seen[id] {
				seen[id] = true
				hits = append(hits, id)
			}
		}
	}
	return hits
}

// Categories returns a copy of the matcher's pattern table.
func (m *Matcher) Categories() []Category {
	out := make([]Category, len(m.categories))
	for i, c := range m.categories {
		out[i] = Category{Name: c.Name, Patterns: append([]string(nil), c.Patterns...)}
	}
	return out
}

// Identifier builds the indicator string for a category/pattern pair.
func Identifier(category, pattern string) string {
	return category + "_" + strings.ReplaceAll(pattern, " ", "_")
}

// CategoryOf returns the category prefix of an indicator produced by Scan, or
// "" when the indicator does not belong to any known category (for example an
// interruption marker).
func (m *Matcher) CategoryOf(indicator string) string {
	for _, c := range m.categories {
		if strings.HasPrefix(indicator, c.Name+"_") {
			return c.Name
		}
	}
	return ""
}
