package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"restaurantDelivery/internal/dispatch"
	"restaurantDelivery/models"
)

func pageArgs(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, badRequest("limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, badRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageArgs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	agents, err := s.deps.Agents.List(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if agents == nil {
		agents = []*models.DeliveryAgent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.GetByID(r.Context(), models.AgentID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if a == nil {
		s.fail(w, r, dispatch.ErrAgentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type upsertAgentRequest struct {
	Name     string           `json:"name" validate:"required"`
	Phone    string           `json:"phone"`
	Vehicle  string           `json:"vehicle"`
	Status   string           `json:"status" validate:"omitempty,oneof=available busy offline on_break"`
	Position *models.Position `json:"position"`
}

// upsertAgent fully overwrites the agent; repeating the request is harmless.
func (s *Server) upsertAgent(w http.ResponseWriter, r *http.Request) {
	var req upsertAgentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a := &models.DeliveryAgent{
		ID:      models.AgentID(chi.URLParam(r, "id")),
		Name:    req.Name,
		Phone:   req.Phone,
		Vehicle: req.Vehicle,
		Status:  models.AgentStatus(req.Status),
	}
	if req.Position != nil {
		a.Position = *req.Position
	}
	saved, err := s.deps.Agents.Upsert(r.Context(), a)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
