package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no route claimed, keeping raw paths out of
// metric labels.
const unmatchedRoute = "unmatched"

// RoutePattern returns the chi pattern that served r, such as
// "/api/v1/wholesale/save". chi fills the route context while routing, so the
// pattern is complete once the downstream handler has returned.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return unmatchedRoute
}
