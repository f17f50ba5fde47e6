package gateway

import (
	"strings"
	"unicode/utf8"

	"github.com/searchgate/server/internal/module/pricing"
	"github.com/searchgate/server/internal/module/search"
	apperrors "github.com/searchgate/server/internal/shared/errors"
)

// MaxQueryLength bounds the accepted query size in characters.
const MaxQueryLength = 500

// SearchRequestBody is the JSON body of a search request.
type SearchRequestBody struct {
	Query      string   `json:"query" binding:"required"`
	Engines    []string `json:"engines,omitempty"`
	Language   string   `json:"language,omitempty"`
	SafeSearch *int     `json:"safe_search,omitempty"`
	TimeRange  string   `json:"time_range,omitempty"`
	Page       int      `json:"page,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// Validate checks the body and converts it to an upstream request.
// Engine names are normalized to lower case before the whitelist check.
func (b *SearchRequestBody) Validate() (search.Request, error) {
	query := strings.TrimSpace(b.Query)
	if query == "" {
		return search.Request{}, apperrors.BadRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return search.Request{}, apperrors.BadRequest("query exceeds maximum length")
	}

	engines := make([]string, 0, len(b.Engines))
	var unsupported []string
	for _, e := range b.Engines {
		name := strings.ToLower(strings.TrimSpace(e))
		if name == "" {
			continue
		}
		if !pricing.IsSupportedEngine(name) {
			unsupported = append(unsupported, name)
			continue
		}
		engines = append(engines, name)
	}
	if len(unsupported) > 0 {
		return search.Request{}, apperrors.UnsupportedEngines(unsupported)
	}

	if b.SafeSearch != nil && (*b.SafeSearch < 0 || *b.SafeSearch > 2) {
		return search.Request{}, apperrors.BadRequest("safe_search must be between 0 and 2")
	}
	if b.Page < 0 {
		return search.Request{}, apperrors.BadRequest("page must be positive")
	}

	return search.Request{
		Query:      query,
		Engines:    engines,
		Language:   b.Language,
		SafeSearch: b.SafeSearch,
		TimeRange:  b.TimeRange,
		Page:       b.Page,
		Category:   b.Category,
	}, nil
}

// CreditsMeta reports the billing outcome of a search.
type CreditsMeta struct {
	UsedForRequest int64 `json:"used_for_request"`
	BalanceAfter   int64 `json:"balance_after"`
}

// SearchMeta is the metadata block attached to a search response.
type SearchMeta struct {
	NumberOfResults int         `json:"number_of_results"`
	ResponseTimeMs  int64       `json:"response_time_ms"`
	InstanceUsed    string      `json:"instance_used"`
	EnginesUsed     []string    `json:"engines_used"`
	Credits         CreditsMeta `json:"credits"`
}

// SearchResponseBody is the JSON body of a successful search.
type SearchResponseBody struct {
	Results []search.Result `json:"results"`
	Meta    SearchMeta      `json:"meta"`
}
