package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/ShipDesk/internal/services/profiles"
)

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Me(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.profiles.UpdateMe(r.Context(), profiles.Input{
		FullName: req.FullName,
		Phone:    req.Phone,
		Company:  req.Company,
		Address:  req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	out, err := s.profiles.List(r.Context(), queryLimit(r), queryInt(r, "offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) setProfileRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.profiles.SetRole(r.Context(), chi.URLParam(r, "id"), req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req adminProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.profiles.AdminUpdate(r.Context(), chi.URLParam(r, "id"), req.model())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := s.profiles.Invite(r.Context(), req.Email, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) listInvites(w http.ResponseWriter, r *http.Request) {
	out, err := s.profiles.ListInvites(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
