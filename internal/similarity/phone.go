package similarity

import "strings"

// NormalizePhone strips everything but digits and drops the US country code
// from 11-digit numbers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// phoneComponents splits a normalized number into area code, exchange and
// subscriber parts. Missing parts are empty.
func phoneComponents(digits string) (area, exchange, subscriber string) {
	switch {
	case len(digits) >= 10:
		return digits[0:3], digits[3:6], digits[6:10]
	case len(digits) == 7:
		return "", digits[0:3], digits[3:7]
	case len(digits) >= 4:
		return "", "", digits[len(digits)-4:]
	default:
		return "", "", ""
	}
}

// Phone compares two phone numbers on their normalized digit strings.
func Phone(a, b string) Result {
	n1, n2 := NormalizePhone(a), NormalizePhone(b)
	res := Result{
		Algorithm:   AlgoPhone,
		Normalized1: n1,
		Normalized2: n2,
		Metadata:    map[string]any{},
	}
	if n1 == "" || n2 == "" {
		return res
	}

	if n1 == n2 {
		res.Score = 1.0
		res.Metadata["match"] = "exact"
		return res
	}

	// One number contained in the other usually means an extension.
	shorter, longer := n1, n2
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		res.Score = float64(len(shorter)) / float64(len(longer))
		res.Metadata["match"] = "substring"
		return res
	}

	a1, e1, s1 := phoneComponents(n1)
	a2, e2, s2 := phoneComponents(n2)
	pairs := [][2]string{{a1, a2}, {e1, e2}, {s1, s2}}
	names := []string{"area_code", "exchange", "subscriber"}

	var compared, matched int
	var matchedNames []string
	for i, p := range pairs {
		if p[0] == "" || p[1] == "" {
			continue
		}
		compared++
		if p[0] == p[1] {
			matched++
			matchedNames = append(matchedNames, names[i])
		}
	}
	res.Metadata["match"] = "components"
	res.Metadata["matched_components"] = matchedNames
	res.Metadata["compared_components"] = compared
	if compared == 0 {
		return res
	}
	res.Score = float64(matched) / float64(compared)
	return res
}
