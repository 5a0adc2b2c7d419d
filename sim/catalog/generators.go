package catalog

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/simehr/simehr/sim"
)

// ItemDoc declares one result item. Exactly one of Value, Range or Series
// supplies the value:
//   - Value is a fixed string (reports, cultures, urinalysis text).
//   - Range draws uniformly from [lo, hi] and rounds to Decimals.
//   - Series picks the entry for the order's sequence number (the last entry
//     repeats once exhausted) and adds ±Jitter, so repeated orders trend.
type ItemDoc struct {
	Name      string    `yaml:"name"`
	Value     string    `yaml:"value"`
	Range     []float64 `yaml:"range"`
	Series    []float64 `yaml:"series"`
	Jitter    float64   `yaml:"jitter"`
	Decimals  *int      `yaml:"decimals"` // default 1
	Unit      string    `yaml:"unit"`
	Reference string    `yaml:"reference"`
	Bounds    []float64 `yaml:"bounds"` // [lo, hi] for auto-flagging
	Flag      sim.Flag  `yaml:"flag"`
	Category  string    `yaml:"category"`
	Report    string    `yaml:"report"`
	Pending   bool      `yaml:"pending"`
	Final     *FinalDoc `yaml:"final"`
}

// FinalDoc is the value a pending item resolves to.
type FinalDoc struct {
	Value string        `yaml:"value"`
	Flag  sim.Flag      `yaml:"flag"`
	Delay time.Duration `yaml:"delay"` // simulated
}

const defaultDecimals = 1

func validateItems(prefix string, items []ItemDoc) error {
	if len(items) == 0 {
		return fmt.Errorf("%s: at least one item required", prefix)
	}
	for i, it := range items {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if it.Name == "" {
			return fmt.Errorf("%s: name required", p)
		}
		sources := 0
		if it.Value != "" {
			sources++
		}
		if len(it.Range) > 0 {
			sources++
			if len(it.Range) != 2 || it.Range[1] < it.Range[0] {
				return fmt.Errorf("%s: range must be [lo, hi] with lo <= hi, got %v", p, it.Range)
			}
		}
		if len(it.Series) > 0 {
			sources++
		}
		if sources != 1 {
			return fmt.Errorf("%s: exactly one of value, range, series required", p)
		}
		if it.Jitter < 0 {
			return fmt.Errorf("%s: jitter must be non-negative, got %v", p, it.Jitter)
		}
		if it.Decimals != nil && (*it.Decimals < 0 || *it.Decimals > 6) {
			return fmt.Errorf("%s: decimals must be in [0, 6], got %d", p, *it.Decimals)
		}
		if len(it.Bounds) != 0 && len(it.Bounds) != 2 {
			return fmt.Errorf("%s: bounds must be [lo, hi], got %v", p, it.Bounds)
		}
		if !sim.ValidFlags[it.Flag] {
			return fmt.Errorf("%s: unknown flag %q", p, it.Flag)
		}
		if it.Final != nil {
			if !it.Pending {
				return fmt.Errorf("%s: final requires pending", p)
			}
			if !sim.ValidFlags[it.Final.Flag] || it.Final.Flag == sim.FlagPending {
				return fmt.Errorf("%s: invalid final flag %q", p, it.Final.Flag)
			}
			if it.Final.Delay < 0 {
				return fmt.Errorf("%s: final delay must be non-negative, got %v", p, it.Final.Delay)
			}
		}
	}
	return nil
}

// itemGenerator produces one ResultItem per declared item, in order. Random
// draws come only from the request's RNG, so a seeded run repeats exactly.
type itemGenerator []ItemDoc

func newItemGenerator(items []ItemDoc) itemGenerator {
	return append(itemGenerator(nil), items...)
}

// Generate implements sim.ResultGenerator.
func (g itemGenerator) Generate(req sim.GenerateRequest) []sim.ResultItem {
	out := make([]sim.ResultItem, 0, len(g))
	for _, it := range g {
		item := sim.ResultItem{
			Name:      it.Name,
			Value:     it.value(req),
			Unit:      it.Unit,
			Reference: it.Reference,
			Flag:      it.Flag,
			Category:  it.Category,
			Report:    it.Report,
			Pending:   it.Pending,
		}
		if len(it.Bounds) == 2 {
			item.Bounds = &sim.RefBounds{Lo: it.Bounds[0], Hi: it.Bounds[1]}
		}
		if it.Final != nil {
			item.PendingFinal = &sim.PendingFinal{Value: it.Final.Value, Flag: it.Final.Flag, Delay: it.Final.Delay}
		}
		out = append(out, item)
	}
	return out
}

func (it ItemDoc) value(req sim.GenerateRequest) string {
	decimals := defaultDecimals
	if it.Decimals != nil {
		decimals = *it.Decimals
	}
	switch {
	case len(it.Range) == 2:
		return formatValue(sim.Uniform(req.Rand, it.Range[0], it.Range[1]), decimals)
	case len(it.Series) > 0:
		idx := req.Sequence
		if idx >= len(it.Series) {
			idx = len(it.Series) - 1
		}
		if idx < 0 {
			idx = 0
		}
		v := it.Series[idx]
		if it.Jitter > 0 {
			v += sim.Uniform(req.Rand, -it.Jitter, it.Jitter)
		}
		return formatValue(v, decimals)
	default:
		return it.Value
	}
}

// formatValue rounds to decimals and drops trailing zeros ("12.0" prints as "12").
func formatValue(v float64, decimals int) string {
	p := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
}
