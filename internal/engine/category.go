package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the analytics bucket a query is classified into.
type Category string

const (
	Sales   Category = "sales"
	Infra   Category = "infra"
	Perf    Category = "perf"
	General Category = "general"
)

// CategorySpec declares a keyword category and the responses it produces.
type CategorySpec struct {
	Category  Category
	Keywords  []string
	Templates []Template
}

// Table is the ordered keyword table plus the fallback templates. The first
// category with any keyword contained in the query wins; declaration order
// breaks ties.
type Table struct {
	categories []CategorySpec
	general    []Template
}

// NewTable validates specs and their templates and lower-cases keywords.
func NewTable(categories []CategorySpec, general []Template) (*Table, error) {
	if len(general) == 0 {
		return nil, errors.New("general templates are required")
	}
	for i, tmpl := range general {
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("general template %d: %w", i, err)
		}
	}

	seen := make(map[Category]bool, len(categories))
	out := make([]CategorySpec, 0, len(categories))
	for i, spec := range categories {
		if spec.Category == "" || spec.Category == General {
			return nil, fmt.Errorf("categories[%d]: invalid name %q", i, spec.Category)
		}
		if seen[spec.Category] {
			return nil, fmt.Errorf("categories[%d]: duplicate category %q", i, spec.Category)
		}
		seen[spec.Category] = true

		if len(spec.Templates) == 0 {
			return nil, fmt.Errorf("category %q: at least one template is required", spec.Category)
		}
		for j, tmpl := range spec.Templates {
			if err := tmpl.Validate(); err != nil {
				return nil, fmt.Errorf("category %q: template %d: %w", spec.Category, j, err)
			}
		}

		keywords := make([]string, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			kw = strings.ToLower(kw)
			// an empty keyword would match every query
			if kw == "" {
				return nil, fmt.Errorf("category %q: empty keyword", spec.Category)
			}
			keywords = append(keywords, kw)
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("category %q: at least one keyword is required", spec.Category)
		}

		out = append(out, CategorySpec{
			Category:  spec.Category,
			Keywords:  keywords,
			Templates: spec.Templates,
		})
	}

	return &Table{categories: out, general: general}, nil
}

// Classify returns the first category whose keyword set contains a
// case-insensitive substring of query. ok is false for the general fallback.
func (t *Table) Classify(query string) (Category, bool) {
	q := strings.ToLower(query)
	for _, spec := range t.categories {
		for _, kw := range spec.Keywords {
			if strings.Contains(q, kw) {
				return spec.Category, true
			}
		}
	}
	return General, false
}

// Templates returns the response templates for c, or the general ones.
func (t *Table) Templates(c Category) []Template {
	for _, spec := range t.categories {
		if spec.Category == c {
			return spec.Templates
		}
	}
	return t.general
}

// Categories lists the keyword categories in match order.
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.categories))
	for _, spec := range t.categories {
		out = append(out, spec.Category)
	}
	return out
}

// DefaultTable returns the built-in sales, infra and perf keyword table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultCategories(), DefaultGeneralTemplates())
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultCategories returns the built-in categories in match order.
func DefaultCategories() []CategorySpec {
	return []CategorySpec{
		{
			Category: Sales,
			Keywords: []string{"sales", "revenue", "forecast"},
			Templates: []Template{
				{Format: "Sales analytics indicate %.0f%% growth projection for next quarter.", Params: []Param{{5, 20}}},
				{Format: "Q3 sales projected at $%.1fM, up %.0f%% from Q2.", Params: []Param{{3.5, 5}, {8, 15}}},
				{Format: "Revenue pipeline is tracking %.0f%% above plan this quarter.", Params: []Param{{2, 12}}},
			},
		},
		{
			Category: Infra,
			Keywords: []string{"aws", "ec2", "kubernetes", "cluster", "infrastructure", "uptime"},
			Templates: []Template{
				{Format: "AWS infrastructure operating normally with %.2f%% uptime.", Params: []Param{{99.9, 99.99}}},
				{Format: "All systems operational. Kubernetes cluster at %.2f%% uptime.", Params: []Param{{99.9, 99.99}}},
				{Format: "EC2 fleet healthy: %.0f instances in service, average CPU at %.0f%%.", Params: []Param{{5, 20}, {25, 60}}},
			},
		},
		{
			Category: Perf,
			Keywords: []string{"performance", "latency", "response time"},
			Templates: []Template{
				{Format: "After optimizations, we achieved %.0f%% lower latency (%.0fms improvement).", Params: []Param{{35, 45}, {250, 320}}},
				{Format: "Response times improved by %.0f%% after fine-tuning.", Params: []Param{{30, 45}}},
			},
		},
	}
}

// DefaultGeneralTemplates returns the fallback responses.
func DefaultGeneralTemplates() []Template {
	return []Template{
		{Format: "I've analyzed your query about '{query}'. Our systems show optimal performance."},
		{Format: "Thanks for asking about '{query}'. Satisfaction across recent conversations is at %.0f%%.", Params: []Param{{90, 97}}},
	}
}

// SampleQueries are the prompts of the dashboard's seeded example
// conversations, followed by a few that fall through to general.
var SampleQueries = []string{
	"What's the Q3 sales forecast?",
	"AWS system status?",
	"Chatbot performance?",
	"How is revenue trending this month?",
	"Is the Kubernetes cluster healthy?",
	"What was the latency last night?",
	"Who won the company hackathon?",
	"Summarize yesterday's all-hands.",
}
