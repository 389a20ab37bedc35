package model

// WebSearchResult is a single ranked search hit
type WebSearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// WebSearchResponse is a complete live-search result set
type WebSearchResponse struct {
	Query      string            `json:"query"`
	Results    []WebSearchResult `json:"results"`
	Answer     string            `json:"answer,omitempty"` // Direct answer when the engine provides one
	SearchTime float64           `json:"search_time"`      // Seconds
}
