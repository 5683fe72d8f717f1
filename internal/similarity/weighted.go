package similarity

import (
	"sort"
	"strings"
)

// Attribute names a comparable business attribute.
type Attribute string

// Comparable attributes.
const (
	AttrName    Attribute = "business_name"
	AttrPhone   Attribute = "phone"
	AttrAddress Attribute = "address"
	AttrZip     Attribute = "zip"
	AttrDomain  Attribute = "domain"
)

// Attributes holds the raw attribute values of one record. Empty strings are
// treated as absent.
type Attributes map[Attribute]string

// Has reports whether the attribute carries a non-blank value.
func (a Attributes) Has(attr Attribute) bool {
	return strings.TrimSpace(a[attr]) != ""
}

var comparators = map[Attribute]func(a, b string) Result{
	AttrName:    Name,
	AttrPhone:   Phone,
	AttrAddress: Address,
	AttrZip:     Zip,
	AttrDomain:  Domain,
}

// Compare runs the comparator registered for attr.
func Compare(attr Attribute, a, b string) (Result, bool) {
	fn, ok := comparators[attr]
	if !ok {
		return Result{}, false
	}
	return fn(a, b), true
}

// Combined is the weighted combination of per-attribute results.
type Combined struct {
	Score       float64               `json:"score"`
	TotalWeight float64               `json:"total_weight"`
	Components  map[Attribute]Result  `json:"components"`
	Weights     map[Attribute]float64 `json:"weights"`
}

// Compared lists the attributes that took part, in a stable order.
func (c Combined) Compared() []Attribute {
	out := make([]Attribute, 0, len(c.Components))
	for attr := range c.Components {
		out = append(out, attr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Result flattens the combination into a Result for audit trails.
func (c Combined) Result() Result {
	breakdown := make(map[string]any, len(c.Components))
	for attr, r := range c.Components {
		breakdown[string(attr)] = r.Score
	}
	return Result{
		Score:     c.Score,
		Algorithm: AlgoWeighted,
		Metadata: map[string]any{
			"total_weight": c.TotalWeight,
			"components":   breakdown,
		},
	}
}

// Combine scores every weighted attribute that is present on at least one
// side. Attributes missing on both sides do not enter the denominator.
func Combine(a, b Attributes, weights map[Attribute]float64) Combined {
	out := Combined{
		Components: make(map[Attribute]Result, len(weights)),
		Weights:    make(map[Attribute]float64, len(weights)),
	}

	attrs := make([]Attribute, 0, len(weights))
	for attr := range weights {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })

	var weighted float64
	for _, attr := range attrs {
		w := weights[attr]
		if w <= 0 {
			continue
		}
		if !a.Has(attr) && !b.Has(attr) {
			continue
		}
		r, ok := Compare(attr, a[attr], b[attr])
		if !ok {
			continue
		}
		out.Components[attr] = r
		out.Weights[attr] = w
		out.TotalWeight += w
		weighted += r.Score * w
	}

	if out.TotalWeight > 0 {
		out.Score = clamp01(weighted / out.TotalWeight)
	}
	return out
}
