package catalog

import (
	"fmt"
	"strings"

	"github.com/simehr/simehr/sim"
)

// MatcherDoc selects orders by catalog ID, result key, or name substring.
// Any populated field matching is enough.
type MatcherDoc struct {
	CatalogID    string   `yaml:"catalog_id"`
	ResultKey    string   `yaml:"result_key"`
	NameContains []string `yaml:"name_contains"` // case-insensitive
}

// FlaggedDoc selects a charted result by name and flag.
type FlaggedDoc struct {
	Name string   `yaml:"name"`
	Flag sim.Flag `yaml:"flag"`
}

// ConditionDoc is a scenario or admission gate. Every present clause must hold.
//
//	missing_any:      at least one matcher has no active order
//	missing_all:      no matcher has an active order
//	not_administered: no administered order matches any matcher
//	result_flagged:   a result with that name carries that flag
//
// Cancelled orders never match.
type ConditionDoc struct {
	MissingAny      []MatcherDoc `yaml:"missing_any"`
	MissingAll      []MatcherDoc `yaml:"missing_all"`
	NotAdministered []MatcherDoc `yaml:"not_administered"`
	ResultFlagged   *FlaggedDoc  `yaml:"result_flagged"`
}

// Resolve builds the sim.Condition the document describes.
func (c ConditionDoc) Resolve() (sim.Condition, error) {
	var all allOf
	add := func(clause string, docs []MatcherDoc, build func([]orderMatcher) sim.Condition) error {
		if docs == nil {
			return nil
		}
		ms, err := resolveMatchers(clause, docs)
		if err != nil {
			return err
		}
		all = append(all, build(ms))
		return nil
	}
	if err := add("missing_any", c.MissingAny, func(ms []orderMatcher) sim.Condition { return missingAny(ms) }); err != nil {
		return nil, err
	}
	if err := add("missing_all", c.MissingAll, func(ms []orderMatcher) sim.Condition { return missingAll(ms) }); err != nil {
		return nil, err
	}
	if err := add("not_administered", c.NotAdministered, func(ms []orderMatcher) sim.Condition { return notAdministered(ms) }); err != nil {
		return nil, err
	}
	if f := c.ResultFlagged; f != nil {
		if f.Name == "" || f.Flag == "" || !sim.ValidFlags[f.Flag] {
			return nil, fmt.Errorf("result_flagged needs a name and a valid flag, got %q/%q", f.Name, f.Flag)
		}
		all = append(all, resultFlagged{name: f.Name, flag: f.Flag})
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("condition has no clauses")
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

func resolveMatchers(clause string, docs []MatcherDoc) ([]orderMatcher, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: at least one matcher required", clause)
	}
	out := make([]orderMatcher, len(docs))
	for i, d := range docs {
		if d.CatalogID == "" && d.ResultKey == "" && len(d.NameContains) == 0 {
			return nil, fmt.Errorf("%s[%d]: empty matcher", clause, i)
		}
		m := orderMatcher{catalogID: d.CatalogID, resultKey: d.ResultKey}
		for _, t := range d.NameContains {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				m.terms = append(m.terms, t)
			}
		}
		out[i] = m
	}
	return out, nil
}

type orderMatcher struct {
	catalogID string
	resultKey string
	terms     []string // lower-cased
}

func (m orderMatcher) matches(o *sim.Order) bool {
	if o.Cancelled {
		return false
	}
	if m.catalogID != "" && o.Item.ID == m.catalogID {
		return true
	}
	if m.resultKey != "" && o.Item.ResultKey == m.resultKey {
		return true
	}
	if len(m.terms) > 0 {
		name := strings.ToLower(o.Item.Name)
		for _, t := range m.terms {
			if strings.Contains(name, t) {
				return true
			}
		}
	}
	return false
}

func (m orderMatcher) anyOrdered(orders []*sim.Order) bool {
	for _, o := range orders {
		if m.matches(o) {
			return true
		}
	}
	return false
}

type missingAny []orderMatcher

func (c missingAny) Holds(chart sim.Chart) bool {
	for _, m := range c {
		if !m.anyOrdered(chart.Orders) {
			return true
		}
	}
	return false
}

type missingAll []orderMatcher

func (c missingAll) Holds(chart sim.Chart) bool {
	for _, m := range c {
		if m.anyOrdered(chart.Orders) {
			return false
		}
	}
	return true
}

type notAdministered []orderMatcher

func (c notAdministered) Holds(chart sim.Chart) bool {
	for _, o := range chart.Orders {
		if !o.Administered {
			continue
		}
		for _, m := range c {
			if m.matches(o) {
				return false
			}
		}
	}
	return true
}

type resultFlagged struct {
	name string
	flag sim.Flag
}

func (c resultFlagged) Holds(chart sim.Chart) bool {
	for _, r := range chart.Results {
		if strings.EqualFold(r.Name, c.name) && r.Flag == c.flag {
			return true
		}
	}
	return false
}

type allOf []sim.Condition

func (c allOf) Holds(chart sim.Chart) bool {
	for _, cond := range c {
		if !cond.Holds(chart) {
			return false
		}
	}
	return true
}
