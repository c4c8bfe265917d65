package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/ShipDesk/internal/format"
)

// trackShipment: публичная страница трекинга, без авторизации.
func (s *Server) trackShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.shipments.GetShipment(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, format.BuildTrackingView(sh))
}

func (s *Server) listShipments(w http.ResponseWriter, r *http.Request) {
	out, err := s.shipments.ListShipments(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := s.shipments.CreateShipment(r.Context(), req.model())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) updateShipment(w http.ResponseWriter, r *http.Request) {
	var req updateShipmentRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := s.shipments.UpdateShipment(r.Context(), chi.URLParam(r, "ref"), req.model())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) appendEvent(w http.ResponseWriter, r *http.Request) {
	var req appendEventRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.shipments.AppendEvent(r.Context(), chi.URLParam(r, "ref"), req.Status, req.Location, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !res.Appended {
		status = http.StatusOK
	}
	writeJSON(w, status, appendEventResponse{Shipment: res.Shipment, Appended: res.Appended})
}

func (s *Server) togglePayment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.shipments.TogglePayment(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) deleteShipment(w http.ResponseWriter, r *http.Request) {
	if err := s.shipments.DeleteShipment(r.Context(), chi.URLParam(r, "ref")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
