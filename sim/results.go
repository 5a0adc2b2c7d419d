package sim

import (
	"github.com/sirupsen/logrus"
)

// SyntheticValue is the placeholder value used when no generator covers a result key.
const SyntheticValue = "See report"

// ResultEngine resolves an order's result key through an ordered list of
// generator tiers, ending in a synthetic placeholder, and auto-flags the output.
type ResultEngine struct {
	tiers []GeneratorTier
}

// NewResultEngine builds an engine that consults tiers in the given order.
// Nil tiers are skipped.
func NewResultEngine(tiers ...GeneratorTier) *ResultEngine {
	e := &ResultEngine{}
	for _, t := range tiers {
		if t != nil {
			e.tiers = append(e.tiers, t)
		}
	}
	return e
}

// Generate returns the flagged result items for a completed order. Never empty.
func (e *ResultEngine) Generate(req GenerateRequest) []ResultItem {
	var items []ResultItem
	for _, tier := range e.tiers {
		gen, ok := tier.Lookup(req.Order.PatientID, req.Order.Item.ResultKey)
		if !ok {
			continue
		}
		items = gen.Generate(req)
		if len(items) > 0 {
			logrus.Debugf("result %s/%s from %s tier", req.Order.PatientID, req.Order.Item.ResultKey, tier.Name())
			break
		}
	}
	if len(items) == 0 {
		items = []ResultItem{syntheticResult(req.Order)}
	}
	for i := range items {
		finishItem(&items[i], req.Order.Item.Category)
	}
	return items
}

func syntheticResult(o *Order) ResultItem {
	return ResultItem{
		Name:     o.Item.Name,
		Value:    SyntheticValue,
		Flag:     FlagNormal,
		Category: displayCategory(o.Item.Category),
	}
}

// finishItem fills the flag and display category the generator left empty.
func finishItem(item *ResultItem, cat Category) {
	if item.Flag == "" {
		switch {
		case item.Pending:
			item.Flag = FlagPending
		case item.Bounds != nil:
			item.Flag = ClassifyFlag(item.Value, item.Bounds)
		default:
			item.Flag = FlagNormal
		}
	}
	if item.Category == "" {
		item.Category = displayCategory(cat)
	}
}

func displayCategory(cat Category) string {
	switch cat {
	case CategoryLab:
		return "Lab"
	case CategoryImaging:
		return "Imaging"
	default:
		return "Diagnostic"
	}
}

// AnyCritical reports whether any item carries the CRITICAL flag.
func AnyCritical(items []ResultItem) bool {
	for _, it := range items {
		if it.Flag == FlagCritical {
			return true
		}
	}
	return false
}
