package common

import (
	"net/http"
	"strconv"
	"strings"
)

// PageInfo holds cursor pagination metadata for list responses.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor,omitempty"`
}

// ParseCursor extracts the first/after cursor parameters from query values.
// first is clamped to [1, maxFirst].
func ParseCursor(r *http.Request, defaultFirst, maxFirst int) (first int, after string) {
	first = defaultFirst
	if f, err := strconv.Atoi(r.URL.Query().Get("first")); err == nil && f > 0 {
		first = f
	}
	if maxFirst > 0 && first > maxFirst {
		first = maxFirst
	}
	if first <= 0 {
		first = 1
	}
	after = strings.TrimSpace(r.URL.Query().Get("after"))
	return
}
