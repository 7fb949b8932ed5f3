package server

import (
	"net/http"
	"time"

	"github.com/koustreak/dac/internal/dbstatus"
	"github.com/koustreak/dac/internal/logger"
	"github.com/koustreak/dac/internal/metrics"
)

const dbStatusPath = "/api/db/status"

// handleDBStatus asks the upstream first and aggregates locally only when the
// upstream cannot answer with a 2xx JSON body.
func (s *Server) handleDBStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	res := s.fetch(r, dbStatusPath, nil)
	if res.OK() {
		s.metrics.IncDBStatus(metrics.SourceUpstream)
		writeRaw(w, res.StatusCode, res.Body)
		return
	}
	log.WarnWith("upstream db status failed, aggregating locally", res.Failure(), nil)

	if s.status == nil {
		s.metrics.IncDBStatus(metrics.SourceFailure)
		log.Error("no database configured for local status")
		writeJSON(w, http.StatusInternalServerError, dbstatus.NewFailure(nil))
		return
	}

	start := time.Now()
	rec, err := s.status.Status(r.Context())
	s.metrics.ObserveAggregation(err == nil, time.Since(start))
	if err != nil {
		s.metrics.IncDBStatus(metrics.SourceFailure)
		log.ErrorWith("local db status failed", err, nil)
		writeJSON(w, http.StatusInternalServerError, dbstatus.NewFailure(err))
		return
	}

	s.metrics.IncDBStatus(metrics.SourceAggregate)
	writeJSON(w, http.StatusOK, rec)
}
