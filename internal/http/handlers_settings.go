package http

import (
	"net/http"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, ownerID string) {
	st, err := s.deps.Settings.Load(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}

// handleSaveSettings overwrites all four values. A missing field counts as
// an invalid value, not as "keep the current one".
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request, ownerID string) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	st, err := s.deps.Settings.SaveRaw(r.Context(), ownerID,
		p.Get("budget"), p.Get("weeklyLimit"), p.Get("monthlyLimit"), p.Get("yearlyLimit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}
