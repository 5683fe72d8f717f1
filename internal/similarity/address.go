package similarity

import (
	"regexp"
	"strings"
)

// AddressComponents is a US street address split into comparable parts.
type AddressComponents struct {
	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
}

// String renders the components in a canonical single-line form.
func (c AddressComponents) String() string {
	street := strings.TrimSpace(c.StreetNumber + " " + c.StreetName)
	parts := make([]string, 0, 3)
	for _, p := range []string{street, c.City, strings.TrimSpace(c.State + " " + c.Zip)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// usStates holds valid two-letter state and territory codes.
var usStates = map[string]bool{
	"al": true, "ak": true, "az": true, "ar": true, "ca": true, "co": true,
	"ct": true, "de": true, "fl": true, "ga": true, "hi": true, "id": true,
	"il": true, "in": true, "ia": true, "ks": true, "ky": true, "la": true,
	"me": true, "md": true, "ma": true, "mi": true, "mn": true, "ms": true,
	"mo": true, "mt": true, "ne": true, "nv": true, "nh": true, "nj": true,
	"nm": true, "ny": true, "nc": true, "nd": true, "oh": true, "ok": true,
	"or": true, "pa": true, "ri": true, "sc": true, "sd": true, "tn": true,
	"tx": true, "ut": true, "vt": true, "va": true, "wa": true, "wv": true,
	"wi": true, "wy": true, "dc": true, "pr": true, "vi": true, "gu": true,
}

// streetAbbreviations maps long street words to their USPS abbreviation.
var streetAbbreviations = map[string]string{
	"street": "st", "avenue": "ave", "av": "ave", "boulevard": "blvd",
	"road": "rd", "drive": "dr", "lane": "ln", "court": "ct",
	"place": "pl", "parkway": "pkwy", "highway": "hwy", "circle": "cir",
	"terrace": "ter", "square": "sq", "trail": "trl", "expressway": "expy",
	"freeway": "fwy", "plaza": "plz", "suite": "ste",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
}

// unitMarkers start a secondary unit designator; everything after is dropped.
var unitMarkers = map[string]bool{"ste": true, "unit": true, "apt": true, "#": true, "fl": true, "floor": true}

var (
	zipTailRe    = regexp.MustCompile(`(?:^|[\s,])(\d{5})(?:-?\d{4})?\s*$`)
	stateTailRe  = regexp.MustCompile(`(?:^|[\s,])([a-z]{2})\s*$`)
	streetNumRe  = regexp.MustCompile(`^(\d+[a-z]?)\s+(.*)$`)
	addrSpaceRe  = regexp.MustCompile(`\s+`)
	addrPunctRep = strings.NewReplacer(".", "", "#", " # ", ";", ",")
)

// ParseAddress splits a free-form US address into components.
func ParseAddress(addr string) AddressComponents {
	s := strings.ToLower(StripDiacritics(strings.TrimSpace(addr)))
	s = addrPunctRep.Replace(s)
	s = strings.TrimSpace(addrSpaceRe.ReplaceAllString(s, " "))

	var c AddressComponents
	if m := zipTailRe.FindStringSubmatchIndex(s); m != nil {
		c.Zip = s[m[2]:m[3]]
		s = s[:m[0]]
	}
	s = strings.TrimRight(s, " ,")

	// A trailing two-letter token is only a state when it is clearly
	// separated from the street ("Main Ct" must stay a street).
	if m := stateTailRe.FindStringSubmatchIndex(s); m != nil {
		code := s[m[2]:m[3]]
		prefix := s[:m[0]]
		if usStates[code] && (strings.Contains(prefix, ",") || c.Zip != "") {
			c.State = code
			s = strings.TrimRight(prefix, " ,")
		}
	}

	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return c
	}
	street := parts[0]
	if len(parts) > 1 {
		c.City = parts[len(parts)-1]
	}

	if m := streetNumRe.FindStringSubmatch(street); m != nil {
		c.StreetNumber = m[1]
		street = m[2]
	}
	c.StreetName = normalizeStreetName(street)
	return c
}

func normalizeStreetName(street string) string {
	words := strings.Fields(street)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if abbr, ok := streetAbbreviations[w]; ok {
			w = abbr
		}
		if unitMarkers[w] {
			break
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

type addressPart struct {
	name   string
	weight float64
	fuzzy  bool
	get    func(AddressComponents) string
}

var addressParts = []addressPart{
	{"street_number", 0.15, false, func(c AddressComponents) string { return c.StreetNumber }},
	{"street_name", 0.35, true, func(c AddressComponents) string { return c.StreetName }},
	{"city", 0.25, true, func(c AddressComponents) string { return c.City }},
	{"state", 0.15, false, func(c AddressComponents) string { return c.State }},
	{"zip", 0.10, false, func(c AddressComponents) string { return c.Zip }},
}

// Address compares two free-form addresses component by component.
func Address(a, b string) Result {
	return AddressParsed(ParseAddress(a), ParseAddress(b))
}

// AddressParsed compares two already-parsed addresses.
func AddressParsed(c1, c2 AddressComponents) Result {
	res := Result{
		Algorithm:   AlgoAddress,
		Normalized1: c1.String(),
		Normalized2: c2.String(),
	}

	var total, weighted float64
	scores := make(map[string]float64, len(addressParts))
	for _, p := range addressParts {
		v1, v2 := p.get(c1), p.get(c2)
		if v1 == "" && v2 == "" {
			continue
		}
		total += p.weight
		var s float64
		switch {
		case v1 == "" || v2 == "":
		case p.fuzzy:
			s = EditSimilarity(v1, v2)
		case v1 == v2:
			s = 1.0
		}
		scores[p.name] = s
		weighted += s * p.weight
	}

	res.Metadata = map[string]any{
		"components_1":     c1,
		"components_2":     c2,
		"component_scores": scores,
	}
	if total > 0 {
		res.Score = clamp01(weighted / total)
	}
	return res
}
