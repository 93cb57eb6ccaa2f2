package search

import (
	"sort"

	domsearch "github.com/Bryant-Tello/Entel/internal/domain/search"
)

// keywordFloor is the minimum fused score for a transcript found only by
// keyword matching. An exact word hit missed by the semantic phase usually
// means the query vector landed in the wrong neighborhood, not that the
// transcript is irrelevant, so it is boosted above most semantic results.
const keywordFloor = 0.85

// fuse merges the two ranked lists. Semantic results win on collision;
// keyword-only results are floored at keywordFloor. The merged list is
// re-sorted by score descending.
func fuse(semantic, keyword []domsearch.Result) []domsearch.Result {
	merged := make([]domsearch.Result, 0, len(semantic)+len(keyword))
	seen := make(map[string]struct{}, len(semantic))

	for _, r := range semantic {
		merged = append(merged, r)
		seen[r.Filename] = struct{}{}
	}
	for _, r := range keyword {
		if _, ok := seen[r.Filename]; ok {
			continue
		}
		if r.Score < keywordFloor {
			r.Score = keywordFloor
		}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged
}
