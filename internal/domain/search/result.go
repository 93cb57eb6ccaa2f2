// Package search holds the search result domain types.
package search

import "github.com/Bryant-Tello/Entel/internal/domain"

// Source tells which retrieval phase produced a result.
type Source string

// Result sources.
const (
	SourceSemantic Source = "semantic"
	SourceKeyword  Source = "keyword"
)

// Result is one ranked search hit. Ephemeral: built during a single search
// invocation and discarded with the response.
type Result struct {
	Filename string
	Category domain.Category
	Score    float64
	Snippet  string
	Source   Source
}
