package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1-415-555-1234", "4155551234"},
		{"(415) 555-1234", "4155551234"},
		{"1 415 555 1234", "4155551234"},
		{"415.555.1234 ext 9", "41555512349"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestPhone_SameDigitsIsExact(t *testing.T) {
	r := Phone("+1-415-555-1234", "(415) 555-1234")
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, "4155551234", r.Normalized1)
	assert.Equal(t, "4155551234", r.Normalized2)

	for _, pair := range [][2]string{
		{"415 555 1234", "415-555-1234"},
		{"14155551234", "4155551234"},
		{"555-1234", "5551234"},
	} {
		assert.Equal(t, 1.0, Phone(pair[0], pair[1]).Score, pair)
	}
}

func TestPhone_Extension(t *testing.T) {
	r := Phone("415-555-1234", "415-555-1234 x5")
	assert.InDelta(t, 10.0/11.0, r.Score, 1e-9)
	assert.Equal(t, "substring", r.Metadata["match"])
}

func TestPhone_Components(t *testing.T) {
	assert.InDelta(t, 2.0/3.0, Phone("415-555-1234", "415-555-9999").Score, 1e-9)
	assert.InDelta(t, 1.0/3.0, Phone("415-555-1234", "510-777-1234").Score, 1e-9)
	assert.Equal(t, 0.0, Phone("415-555-1234", "510-777-9999").Score)
}

func TestPhone_Missing(t *testing.T) {
	assert.Equal(t, 0.0, Phone("", "415-555-1234").Score)
	assert.Equal(t, 0.0, Phone("", "").Score)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corporation", "acme"},
		{"ACME CORP.", "acme"},
		{"Smith and Sons, L.L.C.", "smith & sons"},
		{"Café Rouge", "cafe rouge"},
		{"Joe's Pizza & Pasta Co", "joes pizza & pasta"},
		{"Widget Company Inc", "widget"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestName_SuffixStripping(t *testing.T) {
	r := Name("Acme Corporation", "ACME CORP.")
	assert.GreaterOrEqual(t, r.Score, 0.9)
	assert.Equal(t, "acme", r.Normalized1)
}

func TestName_IdenticalNormalized(t *testing.T) {
	assert.Equal(t, 1.0, Name("Joe's Pizza and Pasta", "Joes Pizza & Pasta LLC").Score)
}

func TestName_DisjointTokens(t *testing.T) {
	r := Name("Blue Ocean Bakery", "Red Mountain Hardware")
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, AlgoName, r.Algorithm)
}

func TestName_PartialOverlap(t *testing.T) {
	// tokens: {golden, gate, bakery, golden gate, gate bakery} vs {golden, gate, cafe, golden gate, gate cafe}
	r := Name("Golden Gate Bakery", "Golden Gate Cafe")
	assert.InDelta(t, 3.0/7.0, r.Score, 1e-9)
}

func TestName_ShortNamesFallBackToEditDistance(t *testing.T) {
	r := Name("AB", "AC")
	assert.Equal(t, AlgoNameEdit, r.Algorithm)
	assert.InDelta(t, 0.5, r.Score, 1e-9)
}

func TestParseAddress(t *testing.T) {
	c := ParseAddress("123 Main Street, Springfield, IL 62701-1234")
	assert.Equal(t, AddressComponents{
		StreetNumber: "123",
		StreetName:   "main st",
		City:         "springfield",
		State:        "il",
		Zip:          "62701",
	}, c)

	c = ParseAddress("500 N. Court, Suite 200, Hartford, CT")
	assert.Equal(t, "500", c.StreetNumber)
	assert.Equal(t, "n ct", c.StreetName)
	assert.Equal(t, "hartford", c.City)
	assert.Equal(t, "ct", c.State)
	assert.Empty(t, c.Zip)
}

func TestParseAddress_StreetSuffixIsNotState(t *testing.T) {
	c := ParseAddress("77 Willow Ct")
	assert.Empty(t, c.State)
	assert.Equal(t, "willow ct", c.StreetName)
	assert.Equal(t, "77", c.StreetNumber)
}

func TestAddress_AbbreviationsMatch(t *testing.T) {
	r := Address("123 Main Street, Springfield, IL 62701", "123 Main St., Springfield, IL 62701")
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, r.Normalized1, r.Normalized2)
}

func TestAddress_DifferentNumber(t *testing.T) {
	r := Address("123 Main St, Springfield, IL 62701", "125 Main St, Springfield, IL 62701")
	assert.InDelta(t, 0.85, r.Score, 1e-9)
}

func TestAddress_MissingOnBothSidesExcluded(t *testing.T) {
	r := Address("123 Main St, Springfield", "123 Main St, Springfield")
	assert.Equal(t, 1.0, r.Score)
	scores, ok := r.Metadata["component_scores"].(map[string]float64)
	require.True(t, ok)
	assert.NotContains(t, scores, "zip")
	assert.NotContains(t, scores, "state")
}

func TestZip(t *testing.T) {
	assert.Equal(t, 1.0, Zip("94105", "94105-1234").Score)
	assert.Equal(t, 0.7, Zip("94105", "94107").Score)
	assert.Equal(t, 0.0, Zip("94105", "10001").Score)
	assert.Equal(t, 0.0, Zip("", "10001").Score)
}

func TestZip_Symmetric(t *testing.T) {
	zips := []string{"94105", "94107", "10001", "9410", "", "94105-0001", "abc"}
	for _, a := range zips {
		for _, b := range zips {
			assert.Equal(t, Zip(a, b).Score, Zip(b, a).Score, "%q vs %q", a, b)
		}
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, 1.0, Domain("https://www.Acme.com/about", "acme.com").Score)
	assert.Equal(t, "acme.com", Domain("http://acme.com:8080", "").Normalized1)
	assert.Equal(t, 0.0, Domain("acme.com", "acme.net").Score)
	assert.Equal(t, 0.0, Domain("", "").Score)
}

func TestCombine_MissingOnBothSidesNotCounted(t *testing.T) {
	weights := map[Attribute]float64{AttrName: 0.5, AttrPhone: 0.5}

	r := Combine(Attributes{AttrName: "Acme"}, Attributes{AttrName: "Acme Inc"}, weights)
	assert.Equal(t, 1.0, r.Score)
	assert.InDelta(t, 0.5, r.TotalWeight, 1e-9)
	assert.NotContains(t, r.Components, AttrPhone)

	// Present on one side only counts as a zero.
	r = Combine(Attributes{AttrName: "Acme", AttrPhone: "415-555-1234"}, Attributes{AttrName: "Acme"}, weights)
	assert.InDelta(t, 0.5, r.Score, 1e-9)
	assert.Contains(t, r.Components, AttrPhone)
}

func TestCombine_NothingToCompare(t *testing.T) {
	r := Combine(Attributes{}, Attributes{}, map[Attribute]float64{AttrName: 1})
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, 0.0, r.TotalWeight)
	assert.Empty(t, r.Compared())
}

func TestCombine_StableAcrossCalls(t *testing.T) {
	a := Attributes{
		AttrName:    "Acme Plumbing",
		AttrPhone:   "415-555-1234",
		AttrAddress: "100 Main St, San Francisco, CA 94105",
		AttrZip:     "94105",
		AttrDomain:  "acme.com",
	}
	b := Attributes{
		AttrName:    "Acme Plumbing and Heating",
		AttrPhone:   "415-555-9999",
		AttrAddress: "100 Main Street, San Francisco, CA 94107",
		AttrZip:     "94107",
		AttrDomain:  "acme.net",
	}
	weights := map[Attribute]float64{AttrName: 0.31, AttrPhone: 0.17, AttrAddress: 0.23, AttrZip: 0.11, AttrDomain: 0.13}

	first := Combine(a, b, weights)
	for i := 0; i < 200; i++ {
		got := Combine(a, b, weights)
		require.Equal(t, first.Score, got.Score, "call %d", i)
		require.Equal(t, first.TotalWeight, got.TotalWeight, "call %d", i)
	}

	// Summed in attribute name order.
	var sum, total float64
	for _, attr := range []Attribute{AttrAddress, AttrName, AttrDomain, AttrPhone, AttrZip} {
		sum += first.Components[attr].Score * weights[attr]
		total += weights[attr]
	}
	assert.Equal(t, total, first.TotalWeight)
	assert.Equal(t, clamp01(sum/total), first.Score)
}

func TestCombine_Breakdown(t *testing.T) {
	a := Attributes{AttrName: "Acme", AttrZip: "94105", AttrDomain: "acme.com"}
	b := Attributes{AttrName: "Acme", AttrZip: "94107", AttrDomain: "www.acme.com"}
	r := Combine(a, b, map[Attribute]float64{AttrName: 0.4, AttrZip: 0.4, AttrDomain: 0.2})

	assert.InDelta(t, (0.4+0.28+0.2)/1.0, r.Score, 1e-9)
	assert.Equal(t, []Attribute{AttrName, AttrDomain, AttrZip}, r.Compared())
	flat := r.Result()
	assert.Equal(t, AlgoWeighted, flat.Algorithm)
	assert.Len(t, flat.Metadata["components"], 3)
}
