package search

// Request is a normalized upstream search query.
type Request struct {
	Query      string
	Engines    []string
	Language   string
	SafeSearch *int
	TimeRange  string
	Page       int
	Category   string
}

// Result is one normalized search result. Position is the 1-based rank in
// the order the upstream returned.
type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Snippet       string  `json:"snippet"`
	Position      int     `json:"position"`
	Engine        string  `json:"engine"`
	PublishedDate *string `json:"published_date,omitempty"`
}

// Response is the outcome of a successful upstream call.
type Response struct {
	Results         []Result
	NumberOfResults int
	InstanceUsed    string
	// EnginesUsed are the engines that actually produced results, used to
	// recompute the final charge. Falls back to the requested engines when
	// the upstream omits per-result engine labels.
	EnginesUsed []string
	Attempts    int
}

// upstreamResponse is the wire shape returned by a meta-search instance.
type upstreamResponse struct {
	Query           string           `json:"query"`
	NumberOfResults int              `json:"number_of_results"`
	Results         []upstreamResult `json:"results"`
}

type upstreamResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Engine        string  `json:"engine"`
	PublishedDate *string `json:"publishedDate"`
}
