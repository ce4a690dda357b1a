package server

import "net/http"

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.balances.SOLBalance(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
