package db

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key string
	// Score is the KNN distance when the query carries a KNN clause.
	Score  float64
	Fields map[string]string
}
