package domain

// RetrievedContext is one chunk ranked against a question
type RetrievedContext struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// RetrievalQuery scopes a similarity search to one site
type RetrievalQuery struct {
	SiteID    string
	Embedding []float32
	Threshold float64
	Limit     int
}
