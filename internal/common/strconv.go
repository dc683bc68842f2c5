package common

import (
	"net/http"
	"strconv"
	"strings"
)

// QueryInt reads an integer query parameter. Missing, malformed and
// out-of-range values all yield def.
func QueryInt(r *http.Request, key string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}
