package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"restaurantDelivery/internal/auth"
	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

type lineItemRequest struct {
	CatalogItemID string              `json:"catalog_item_id" validate:"required"`
	Name          string              `json:"name" validate:"required"`
	UnitPrice     int64               `json:"unit_price" validate:"gte=0"`
	Quantity      int                 `json:"quantity" validate:"gt=0"`
	Options       []models.LineOption `json:"options"`
}

type createOrderRequest struct {
	CustomerID  string            `json:"customer_id"`
	Type        string            `json:"type" validate:"required,oneof=delivery pickup dine-in"`
	Items       []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Tax         int64             `json:"tax" validate:"gte=0"`
	DeliveryFee int64             `json:"delivery_fee" validate:"gte=0"`
	Destination *models.Position  `json:"destination"`
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if p := principal(r); p.Kind == auth.KindCustomer && p.Name != auth.AnonymousName {
		customerID = p.Name
	}
	if customerID == "" {
		s.fail(w, r, badRequest("customer_id is required"))
		return
	}

	o := &models.Order{
		CustomerID:  customerID,
		Type:        models.OrderType(req.Type),
		Tax:         req.Tax,
		DeliveryFee: req.DeliveryFee,
		Destination: req.Destination,
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, models.LineItem{
			CatalogItemID: models.CatalogItemID(it.CatalogItemID),
			Name:          it.Name,
			UnitPrice:     it.UnitPrice,
			Quantity:      it.Quantity,
			Options:       it.Options,
		})
	}
	o.Subtotal = o.ItemsSubtotal()
	o.Total = o.Subtotal + o.Tax + o.DeliveryFee

	created, err := s.deps.Machine.Create(r.Context(), o)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log(r).Info("order created", zap.String("order_id", string(created.ID)), zap.String("type", string(created.Type)))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p repository.ListOrdersParams
	for _, v := range splitList(q.Get("status")) {
		st := models.OrderStatus(v)
		if !st.Valid() {
			s.fail(w, r, badRequest("unknown status %q", v))
			return
		}
		p.Statuses = append(p.Statuses, st)
	}
	for _, v := range splitList(q.Get("type")) {
		t := models.OrderType(v)
		if !t.Valid() {
			s.fail(w, r, badRequest("unknown type %q", v))
			return
		}
		p.Types = append(p.Types, t)
	}
	if v := q.Get("customer_id"); v != "" {
		p.CustomerID = &v
	}
	if v := q.Get("agent_id"); v != "" {
		a := models.AgentID(v)
		p.AgentID = &a
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, badRequest("page_size must be a positive integer"))
			return
		}
		p.PageSize = n
	}
	if tok := q.Get("page_token"); tok != "" {
		ts, id, err := repository.DecodeCursor(tok)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		p.AfterCreated, p.AfterID = ts, id
	}

	orders, err := s.deps.Orders.List(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := struct {
		Orders        []models.Order `json:"orders"`
		NextPageToken string         `json:"next_page_token,omitempty"`
	}{Orders: orders}
	if resp.Orders == nil {
		resp.Orders = []models.Order{}
	}
	size := p.PageSize
	if size <= 0 {
		size = 20
	}
	if len(orders) > 0 && len(orders) >= size {
		resp.NextPageToken = repository.Cursor(orders[len(orders)-1])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	id := models.OrderID(chi.URLParam(r, "id"))
	o, err := s.deps.Orders.GetByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if o == nil {
		s.fail(w, r, lifecycle.ErrOrderNotFound)
		return nil, false
	}
	return o, true
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	if o, ok := s.loadOrder(w, r); ok {
		writeJSON(w, http.StatusOK, o)
	}
}

type updateOrderRequest struct {
	CustomerID  *string          `json:"customer_id" validate:"omitempty,min=1"`
	Destination *models.Position `json:"destination"`
	Tax         *int64           `json:"tax" validate:"omitempty,gte=0"`
	DeliveryFee *int64           `json:"delivery_fee" validate:"omitempty,gte=0"`
}

func (s *Server) updateOrderFields(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	o, err := s.deps.Machine.UpdateFields(r.Context(), models.OrderID(chi.URLParam(r, "id")), repository.OrderPatch{
		CustomerID:  req.CustomerID,
		Destination: req.Destination,
		Tax:         req.Tax,
		DeliveryFee: req.DeliveryFee,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type proofRequest struct {
	Type    string `json:"type" validate:"required"`
	Payload string `json:"payload"`
}

// transitionRequest carries top-level status changes only. The courier fields
// are decoded so they can be refused with a pointer to the dispatcher routes.
type transitionRequest struct {
	Status         *string         `json:"status"`
	DeliveryStatus *string         `json:"delivery_status"`
	AgentID        *string         `json:"agent_id"`
	ClearAgent     bool            `json:"clear_agent"`
	Proof          json.RawMessage `json:"proof"`
}

func (req transitionRequest) courierFieldsError() error {
	switch {
	case req.DeliveryStatus != nil:
		return badRequest("delivery_status moves through /orders/{id}/advance and /orders/{id}/proof")
	case req.AgentID != nil:
		return badRequest("agent_id is set through /orders/{id}/assign")
	case req.ClearAgent:
		return badRequest("clear_agent is done through /orders/{id}/unassign")
	case len(req.Proof) > 0:
		return badRequest("proof is submitted through /orders/{id}/proof")
	}
	return nil
}

func (s *Server) applyTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.courierFieldsError(); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Status == nil {
		s.fail(w, r, badRequest("status is required"))
		return
	}
	st := models.OrderStatus(*req.Status)
	if !st.Valid() {
		s.fail(w, r, badRequest("unknown status %q", *req.Status))
		return
	}
	o, err := s.deps.Machine.ApplyFunc(r.Context(), models.OrderID(chi.URLParam(r, "id")), func(cur *models.Order) (lifecycle.Transition, error) {
		if st == models.OrderStatusCompleted && cur.Type == models.OrderTypeDelivery {
			return lifecycle.Transition{}, badRequest("delivery orders complete through /orders/{id}/proof")
		}
		return lifecycle.Transition{Status: &st}, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id" validate:"required"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	o, err := s.deps.Dispatcher.Assign(r.Context(), models.OrderID(chi.URLParam(r, "id")), models.AgentID(req.AgentID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryStatus string `json:"delivery_status" validate:"required"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ds, _, err := models.ParseDeliveryStatus(req.DeliveryStatus)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	o, err := s.deps.Dispatcher.Advance(r.Context(), models.OrderID(chi.URLParam(r, "id")), ds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) unassign(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Dispatcher.Unassign(r.Context(), models.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) completeWithProof(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	o, err := s.deps.Dispatcher.CompleteWithProof(r.Context(), models.OrderID(chi.URLParam(r, "id")), models.ProofOfDelivery{
		Type:    models.ProofType(req.Type),
		Payload: req.Payload,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) tracking(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Simulator.Peek(r.Context(), models.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// deliveryCodeQR renders the delivery code for the customer to show the courier.
func (s *Server) deliveryCodeQR(w http.ResponseWriter, r *http.Request) {
	if principal(r).Kind == auth.KindAgent {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "agents cannot view delivery codes"})
		return
	}
	o, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if o.DeliveryCode == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order has no delivery code yet"})
		return
	}
	png, err := qrcode.Encode(o.DeliveryCode, qrcode.Medium, 256)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
