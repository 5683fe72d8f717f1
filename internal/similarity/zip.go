package similarity

import (
	"net/url"
	"strings"
)

// NormalizeZip keeps the first five digits of a postal code.
func NormalizeZip(zip string) string {
	var b strings.Builder
	for _, r := range zip {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	return b.String()
}

// Zip scores two postal codes: 1.0 for the same five digits, 0.7 for the same
// three-digit sectional center, otherwise 0.
func Zip(a, b string) Result {
	n1, n2 := NormalizeZip(a), NormalizeZip(b)
	res := Result{Algorithm: AlgoZip, Normalized1: n1, Normalized2: n2}
	switch {
	case n1 == "" || n2 == "":
	case n1 == n2:
		res.Score = 1.0
	case len(n1) >= 3 && len(n2) >= 3 && n1[:3] == n2[:3]:
		res.Score = 0.7
	}
	return res
}

// NormalizeDomain reduces a website to its bare lower-case host name.
func NormalizeDomain(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	return strings.TrimPrefix(host, "www.")
}

// Domain is an exact comparison of normalized website hosts.
func Domain(a, b string) Result {
	n1, n2 := NormalizeDomain(a), NormalizeDomain(b)
	res := Result{Algorithm: AlgoDomain, Normalized1: n1, Normalized2: n2}
	if n1 != "" && n1 == n2 {
		res.Score = 1.0
	}
	return res
}
