package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurantDelivery/internal/tracking"
)

func observer(r *http.Request) tracking.Observer {
	p := principal(r)
	return tracking.Observer{Role: p.Role(), ID: p.Name}
}

// listNotifications starts the caller's poller on first use and returns the
// notifications still visible.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	obs := observer(r)
	s.deps.Tracking.Ensure(obs)
	list := s.deps.Tracking.Inbox().List(obs)
	if list == nil {
		list = []tracking.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) dismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Tracking.Inbox().Dismiss(observer(r), chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification not found or expired"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) actOnNotification(w http.ResponseWriter, r *http.Request) {
	path, ok := s.deps.Tracking.Inbox().Act(observer(r), chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification not found or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tracking_path": path})
}
