package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

// startChat идемпотентен: повторный вызов вернёт ту же активную сессию.
func (s *Server) startChat(w http.ResponseWriter, r *http.Request) {
	cs, err := s.chat.StartSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	out, err := s.chat.ListSessions(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.chat.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) setChatStatus(w http.ResponseWriter, r *http.Request) {
	var req chatStatusRequest
	if !decode(w, r, &req) {
		return
	}
	cs, err := s.chat.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// streamChat: новые сообщения одной сессии. Доступ проверяется тем же GetSession.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.stream(w, r, realtime.TableChatMessages, conv.Session.ID, realtime.EventInsert)
}

// streamChatSessions: очередь поддержки, только для админа без имперсонации.
func (s *Server) streamChatSessions(w http.ResponseWriter, r *http.Request) {
	a := auth.FromContext(r.Context())
	if !a.IsAuthenticated() {
		writeError(w, r, models.ErrUnauthorized)
		return
	}
	if !a.IsAdmin() || a.Impersonating {
		writeError(w, r, models.ErrForbidden)
		return
	}
	s.stream(w, r, realtime.TableChatSessions, "", realtime.EventAll)
}
