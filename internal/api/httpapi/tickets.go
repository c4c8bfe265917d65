package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/ShipDesk/internal/models"
)

// createTicket доступен и гостю: тикет без владельца, ответы уходят на email.
func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := s.tickets.CreateTicket(r.Context(), models.TicketCreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	out, err := s.tickets.ListTickets(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	th, err := s.tickets.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) addReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.tickets.AddReply(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, replyResponse{Reply: res.Reply, Ticket: res.Ticket, Warning: res.Warning})
}

func (s *Server) updateTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req ticketStatusRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := s.tickets.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
