package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/koustreak/dac/internal/logger"
	"github.com/koustreak/dac/internal/upstream"
)

// unavailableMessage is the fallback text shown by the dashboard when the
// backend API cannot be reached.
const unavailableMessage = "Backend indisponível"

var (
	healthFallback = map[string]string{"status": "error", "message": unavailableMessage}
	proxyFallback  = map[string]string{"message": unavailableMessage}
)

// Default pagination forwarded to the backend listing.
const (
	defaultPage  = 1
	defaultLimit = 10
)

// individuosFilters are forwarded only when non-empty.
var individuosFilters = []string{"regiao_id", "idade", "genero"}

// fetch calls the upstream and records the call.
func (s *Server) fetch(r *http.Request, path string, query url.Values) upstream.Result {
	start := time.Now()
	res := s.upstream.Get(r.Context(), path, query)
	s.metrics.ObserveUpstream(path, res.OK(), time.Since(start))
	return res
}

// proxy relays path from the upstream. A JSON response is passed through with
// its status code; anything else becomes a 503 with fallback.
func (s *Server) proxy(path string, fallback any, query func(*http.Request) url.Values) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q url.Values
		if query != nil {
			q = query(r)
		}

		res := s.fetch(r, path, q)
		if !res.Relayable() {
			logger.FromContext(r.Context()).WarnWith("upstream unavailable", res.Err, map[string]any{
				"upstream_path": path,
			})
			writeJSON(w, http.StatusServiceUnavailable, fallback)
			return
		}
		writeRaw(w, res.StatusCode, res.Body)
	}
}

// individuosQuery builds the listing query: page and limit always, filters
// only when set.
func individuosQuery(r *http.Request) url.Values {
	in := r.URL.Query()
	q := url.Values{}
	q.Set("page", strconv.Itoa(intParam(in.Get("page"), defaultPage)))
	q.Set("limit", strconv.Itoa(intParam(in.Get("limit"), defaultLimit)))
	for _, key := range individuosFilters {
		if v := in.Get(key); v != "" {
			q.Set(key, v)
		}
	}
	return q
}

// intParam parses v, returning def when v is empty or not an integer.
func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
