package moderation

import (
	"sort"
	"strings"
)

// DefaultBannedTerms is the term list applied to every prompt before checkout.
// Matching is plain substring containment on the lowercased text, so words that
// merely contain a term (e.g. "assassin") are blocked as well.
var DefaultBannedTerms = []string{
	"fuck", "shit", "bitch", "ass", "dick", "pussy", "cock", "cunt",
	"nazi", "hitler", "terrorist", "bomb", "kill", "murder", "suicide",
}

// Verdict is the allow/block decision for a piece of text.
type Verdict struct {
	Allowed      bool     `json:"allowed"`
	MatchedTerms []string `json:"-"`
}

type Filter struct {
	terms []string
}

// New builds a Filter from terms. Terms are lowercased, trimmed and deduplicated;
// empty terms are dropped.
func New(terms []string) *Filter {
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	sort.Strings(normalized)
	return &Filter{terms: normalized}
}

func Default() *Filter {
	return New(DefaultBannedTerms)
}

// Classify never fails. MatchedTerms is sorted and holds every configured term
// found in text.
func (f *Filter) Classify(text string) Verdict {
	lower := strings.ToLower(text)

	var matched []string
	for _, term := range f.terms {
		if strings.Contains(lower, term) {
			matched = append(matched, term)
		}
	}

	return Verdict{
		Allowed:      len(matched) == 0,
		MatchedTerms: matched,
	}
}

// Terms returns a copy of the configured term list.
func (f *Filter) Terms() []string {
	out := make([]string, len(f.terms))
	copy(out, f.terms)
	return out
}

var defaultFilter = Default()

// Classify runs text through the default term list.
func Classify(text string) Verdict {
	return defaultFilter.Classify(text)
}
