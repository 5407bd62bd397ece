package model

import "strings"

// Strategy selects how the aggregator fans a query out across sources.
type Strategy string

const (
	StrategyFastest       Strategy = "fastest"
	StrategyComprehensive Strategy = "comprehensive"
	StrategySequential    Strategy = "sequential"
	StrategyQualityFirst  Strategy = "quality_first"
)

// ParseStrategy maps a config/API string to a Strategy, defaulting to
// comprehensive for anything unrecognized.
func ParseStrategy(s string) Strategy {
	v := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case StrategyFastest, StrategyComprehensive, StrategySequential, StrategyQualityFirst:
		return v
	default:
		return StrategyComprehensive
	}
}

// SearchRequest is the orchestrator's input contract.
type SearchRequest struct {
	Query    string        `json:"query"`
	UserID   int64         `json:"userId"`
	Sources  []TrackSource `json:"sources,omitempty"` // empty = all eligible
	Limit    int           `json:"limit,omitempty"`
	Strategy Strategy      `json:"strategy,omitempty"`
	UseCache bool          `json:"useCache"`
}

// SearchResponse is the uniform success shape: "no results" is not an
// error, it is an empty Results with Suggestions filled in.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	TotalFound     int            `json:"totalFound"`
	ElapsedMs      int64          `json:"elapsedMs"`
	SourcesUsed    []TrackSource  `json:"sourcesUsed"`
	Cached         bool           `json:"cached"`
	Suggestions    []string       `json:"suggestions,omitempty"`
	CorrectedQuery string         `json:"correctedQuery,omitempty"`
}
