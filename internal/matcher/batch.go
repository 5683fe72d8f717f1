package matcher

import "github.com/mirqtio/LeadFactory-v1-sub002/internal/model"

// DedupGroup is one canonical record and the records merged into it.
type DedupGroup struct {
	Canonical  model.Business   `json:"canonical"`
	Duplicates []model.Business `json:"duplicates,omitempty"`
	Matches    []Result         `json:"matches,omitempty"`
}

// MatchDatasets finds, for each record in left, its best match in right at or
// above minScore. Records with no qualifying match are omitted.
func (m *Matcher) MatchDatasets(left, right []model.Business, minScore float64) []Result {
	var out []Result
	for _, l := range left {
		if best := m.FindBestMatches(l, right, minScore, 1); len(best) > 0 {
			out = append(out, best[0])
		}
	}
	return out
}

// Deduplicate groups records greedily: each unassigned record becomes a
// canonical representative and absorbs every later unassigned record that
// matches it at or above minScore with a usable confidence.
func (m *Matcher) Deduplicate(records []model.Business, minScore float64) []DedupGroup {
	assigned := make([]bool, len(records))
	var groups []DedupGroup

	for i, rec := range records {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		g := DedupGroup{Canonical: rec}

		for j := i + 1; j < len(records); j++ {
			if assigned[j] {
				continue
			}
			r := m.MatchRecords(rec, records[j])
			if r.OverallScore >= minScore && r.IsMatch() {
				assigned[j] = true
				g.Duplicates = append(g.Duplicates, records[j])
				g.Matches = append(g.Matches, r)
			}
		}
		groups = append(groups, g)
	}
	return groups
}
