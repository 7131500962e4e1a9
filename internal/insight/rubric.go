// Package insight turns crawled page content into a scored growth analysis by
// prompting a language model with a fixed rubric and parsing its JSON reply.
package insight

import (
	"errors"
	"fmt"
	"strings"
)

// RubricTotal is the number of points a rubric must distribute.
const RubricTotal = 100

// Criterion is one scored category of the rubric.
type Criterion struct {
	Name   string   `json:"name"`
	Points int      `json:"points"`
	Checks []string `json:"checks"`
}

// Rubric is the scoring framework shared by prompt construction and reply
// validation.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

// DefaultRubric returns the five-category, 100-point growth rubric.
func DefaultRubric() Rubric {
	return Rubric{Criteria: []Criterion{
		{
			Name:   "Value Proposition Clarity",
			Points: 20,
			Checks: []string{
				"Headline states what the business offers and for whom",
				"Benefits are concrete rather than generic",
				"Differentiation from competitors is visible",
			},
		},
		{
			Name:   "Conversion Optimization",
			Points: 25,
			Checks: []string{
				"Primary call to action is clear and repeated",
				"Lead capture or contact path is easy to find",
				"Friction in forms and next steps is low",
			},
		},
		{
			Name:   "Content Quality",
			Points: 20,
			Checks: []string{
				"Copy is specific, scannable and free of filler",
				"Content answers buyer questions and objections",
				"Structure uses headings and short sections",
			},
		},
		{
			Name:   "Technical & SEO Signals",
			Points: 20,
			Checks: []string{
				"Title and meta description are present and descriptive",
				"Headings and keywords match search intent",
				"Page appears fast and mobile friendly from its markup",
			},
		},
		{
			Name:   "Trust & Credibility",
			Points: 15,
			Checks: []string{
				"Testimonials, reviews or case studies are shown",
				"Contact details, guarantees or policies are visible",
				"Brand, team or credentials are presented",
			},
		},
	}}
}

// Total returns the sum of all criterion points.
func (r Rubric) Total() int {
	total := 0
	for _, c := range r.Criteria {
		total += c.Points
	}
	return total
}

// Validate checks that names are unique, points are positive and the rubric
// distributes exactly RubricTotal points.
func (r Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return errors.New("rubric has no criteria")
	}
	seen := make(map[string]struct{}, len(r.Criteria))
	for _, c := range r.Criteria {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			return errors.New("rubric criterion name is required")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate rubric criterion %q", c.Name)
		}
		seen[key] = struct{}{}
		if c.Points <= 0 {
			return fmt.Errorf("rubric criterion %q must have positive points", c.Name)
		}
	}
	if total := r.Total(); total != RubricTotal {
		return fmt.Errorf("rubric points sum to %d, want %d", total, RubricTotal)
	}
	return nil
}

// MaxPoints returns the point budget of the named criterion.
func (r Rubric) MaxPoints(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.Criteria {
		if strings.ToLower(c.Name) == key {
			return c.Points, true
		}
	}
	return 0, false
}

// ClampCategory bounds a category score by its budget, or by [0, RubricTotal]
// for names outside the rubric.
func (r Rubric) ClampCategory(name string, score int) int {
	limit, ok := r.MaxPoints(name)
	if !ok {
		limit = RubricTotal
	}
	return clamp(score, 0, limit)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
