package server

import (
	"net/http"

	"github.com/koustreak/dac/internal/errs"
	"github.com/koustreak/dac/internal/logger"
)

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	inv, err := s.backups.Inventory(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).ErrorWith("backup inventory failed", err, map[string]any{
			"kind": errs.KindOf(err).String(),
		})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
