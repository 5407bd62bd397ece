package model

import "time"

// SearchHistory is one recorded search, written fire-and-forget by the
// orchestrator's worker pool. Nothing in the search path reads it back
// synchronously.
type SearchHistory struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	UserID          int64     `json:"userId" gorm:"index"`
	Query           string    `json:"query" gorm:"size:255;not null"`
	NormalizedQuery string    `json:"normalizedQuery" gorm:"size:255;index"`
	ResultCount     int       `json:"resultCount"`
	SourcesUsed     string    `json:"sourcesUsed" gorm:"size:255"` // comma-separated
	TookMs          int64     `json:"tookMs"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName sets the table name for GORM.
func (SearchHistory) TableName() string {
	return "search_history"
}

// PopularSearch is an aggregated counter row maintained by the suggestion
// repository (raw SQL upsert, no GORM).
type PopularSearch struct {
	Query    string    `json:"query"`
	Hits     int64     `json:"hits"`
	LastSeen time.Time `json:"lastSeen"`
}
