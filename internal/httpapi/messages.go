package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurantDelivery/models"
)

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Messages.ListByOrder(r.Context(), models.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.OrderMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// appendMessage posts to the order's thread as the calling principal.
func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text" validate:"required,max=2000"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.deps.Messages.Append(r.Context(), models.OrderID(chi.URLParam(r, "id")), &models.OrderMessage{
		Sender: principal(r).Role(),
		Text:   req.Text,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Messages.MarkRead(r.Context(), models.OrderID(chi.URLParam(r, "id")), principal(r).Role())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
