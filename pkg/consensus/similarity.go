package consensus

import (
	"strings"

	"github.com/zen-systems/quorum/pkg/schema"
)

// tokenize lowercases text and splits it into its set of
// whitespace-delimited tokens.
func tokenize(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

// jaccard measures token-set overlap between two texts as intersection
// over union, defined 0 when either side has no tokens.
func jaccard(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// groupBySimilarity partitions responses into clusters of mutually
// similar answers. Each response joins the first cluster whose
// representative (its first member) it matches at or above the
// threshold, else starts a new cluster. Input must already be in
// candidate selection order.
func groupBySimilarity(responses []schema.AIResponse, threshold float64) [][]int {
	var groups [][]int
	for i := range responses {
		placed := false
		for g, members := range groups {
			rep := responses[members[0]]
			if jaccard(responses[i].Text, rep.Text) >= threshold {
				groups[g] = append(members, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}
	return groups
}

// allPairwiseSimilar reports whether every pair of responses meets the
// threshold. A single response is trivially unanimous.
func allPairwiseSimilar(responses []schema.AIResponse, threshold float64) bool {
	for i := 0; i < len(responses); i++ {
		for j := i + 1; j < len(responses); j++ {
			if jaccard(responses[i].Text, responses[j].Text) < threshold {
				return false
			}
		}
	}
	return true
}
