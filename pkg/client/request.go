package client

import (
	"net/url"
	"strconv"

	"github.com/Sternrassler/gourmet-search/pkg/model"
)

// MaxPageSize is the largest count the search API accepts per request.
const MaxPageSize = 100

// Query parameter names understood by the search API.
const (
	paramKey     = "key"
	paramLat     = "lat"
	paramLng     = "lng"
	paramRange   = "range"
	paramStart   = "start"
	paramCount   = "count"
	paramFormat  = "format"
	paramKeyword = "keyword"
	paramGenre   = "genre"
)

// buildQuery encodes criteria and paging into query parameters.
// Optional parameters are omitted rather than sent empty.
func buildQuery(apiKey string, criteria model.SearchCriteria, start, count int) url.Values {
	q := url.Values{}
	q.Set(paramKey, apiKey)
	q.Set(paramLat, strconv.FormatFloat(criteria.Latitude, 'f', -1, 64))
	q.Set(paramLng, strconv.FormatFloat(criteria.Longitude, 'f', -1, 64))
	q.Set(paramRange, strconv.Itoa(criteria.Radius.Code()))
	q.Set(paramStart, strconv.Itoa(start))
	q.Set(paramCount, strconv.Itoa(count))
	q.Set(paramFormat, "json")

	if criteria.Keyword != "" {
		q.Set(paramKeyword, criteria.Keyword)
	}
	if criteria.Genre != "" {
		q.Set(paramGenre, criteria.Genre)
	}

	return q
}

// validateRequest rejects inputs that cannot produce a valid request.
func validateRequest(criteria model.SearchCriteria, start, count int) error {
	if err := criteria.Validate(); err != nil {
		return configError("%v", err)
	}
	if start < 1 {
		return configError("start offset must be >= 1 (got %d)", start)
	}
	if count < 1 || count > MaxPageSize {
		return configError("page size must be between 1 and %d (got %d)", MaxPageSize, count)
	}
	return nil
}

// requestURL joins the endpoint and the encoded query. Parameters already
// present in the endpoint are kept unless q sets the same name.
func requestURL(endpoint *url.URL, q url.Values) string {
	u := *endpoint
	merged := endpoint.Query()
	for name, values := range q {
		merged[name] = values
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
