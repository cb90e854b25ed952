package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantDelivery/internal/dispatch"
	"restaurantDelivery/internal/events"
	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/internal/simulator"
	"restaurantDelivery/internal/testutil"
	"restaurantDelivery/internal/tracking"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

const secret = "http-secret"

type fixture struct {
	srv     *httptest.Server
	orders  *repository.OrderRepository
	catalog *repository.CatalogRepository
	hub     *tracking.Hub
	admin   string
	agent   string
	cust    string
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	orders := repository.NewOrderRepository(d)
	agents := repository.NewAgentRepository(d)
	catalog := repository.NewCatalogRepository(d)
	bus := events.NewBus(nil, 32)
	machine := lifecycle.NewMachine(orders, bus, nil)
	sim := simulator.NewManager(orders, agents, simulator.Config{Tick: time.Hour}, nil)
	hub := tracking.NewHub(tracking.NewNotifier(nil, tracking.NewInbox(time.Minute), agents, nil), orders, bus, time.Hour, nil)
	t.Cleanup(func() {
		hub.Close()
		sim.Close()
		bus.Close()
	})

	s := NewServer(Deps{
		Orders:     orders,
		Agents:     agents,
		Catalog:    catalog,
		Messages:   repository.NewMessageRepository(d),
		Machine:    machine,
		Dispatcher: dispatch.New(orders, agents, machine, dispatch.NewAttemptGuard(5), nil),
		Simulator:  sim,
		Tracking:   hub,
		JWTSecret:  secret,
	}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{
		srv:     srv,
		orders:  orders,
		catalog: catalog,
		hub:     hub,
		admin:   testutil.GenerateJWTHS256(t, secret, "root", "admin"),
		agent:   testutil.GenerateJWTHS256(t, secret, "A", "agent"),
		cust:    testutil.GenerateJWTHS256(t, secret, "cust-1", "customer"),
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (f *fixture) seedCatalog(t *testing.T) {
	t.Helper()
	for _, it := range []models.CatalogItem{{ID: "burger", Name: "Burger", Price: 850, Stock: 10}, {ID: "fries", Name: "Fries", Price: 300, Stock: 10}} {
		it := it
		_, err := f.catalog.Upsert(context.Background(), &it)
		require.NoError(t, err)
	}
}

var deliveryBody = map[string]any{
	"type": "delivery",
	"items": []map[string]any{
		{"catalog_item_id": "burger", "name": "Burger", "unit_price": 850, "quantity": 2, "options": []map[string]any{{"name": "cheese", "price": 100}}},
		{"catalog_item_id": "fries", "name": "Fries", "unit_price": 300, "quantity": 1},
	},
	"tax":          200,
	"delivery_fee": 400,
	"destination":  map[string]any{"lat": 40.7128, "lng": -74.0060},
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "http_health")
	resp, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestDeliveryFlow(t *testing.T) {
	f := newFixture(t, "http_flow")
	f.seedCatalog(t)

	resp, created := f.do(t, http.MethodPost, "/orders", f.cust, deliveryBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	assert.Equal(t, "cust-1", created["customer_id"])
	assert.EqualValues(t, 2200, created["subtotal"])
	assert.EqualValues(t, 2800, created["total"])
	assert.Equal(t, "pending_approval", created["status"])

	// Assigning before approval is rejected.
	resp, _ = f.do(t, http.MethodPut, "/agents/A", f.admin, map[string]any{"name": "Alex", "position": map[string]any{"lat": 40.70, "lng": -74.02}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/assign", f.admin, map[string]any{"agent_id": "A"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, approved := f.do(t, http.MethodPost, "/orders/"+id+"/transitions", f.admin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := approved["delivery_code"].(string)
	assert.Len(t, code, 4)

	resp, _ = f.do(t, http.MethodGet, "/catalog/burger", f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	burger, err := f.catalog.GetByID(context.Background(), "burger")
	require.NoError(t, err)
	assert.Equal(t, 8, burger.Stock)

	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/assign", f.admin, map[string]any{"agent_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, assigned := f.do(t, http.MethodPost, "/orders/"+id+"/assign", f.admin, map[string]any{"agent_id": "A"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready_for_logistics", assigned["delivery_status"])

	// Skipping a stage is an invalid transition.
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/advance", f.agent, map[string]any{"delivery_status": "on_way"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	for _, ds := range []string{"picking", "packing", "on_way"} {
		resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/advance", f.agent, map[string]any{"delivery_status": ds})
		require.Equal(t, http.StatusOK, resp.StatusCode, "advance to %s", ds)
	}

	resp, snap := f.do(t, http.MethodGet, "/orders/"+id+"/tracking", f.cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, snap["tracking"])
	assert.NotEqual(t, "--", snap["eta_label"])

	resp, _ = f.do(t, http.MethodGet, "/orders/"+id+"/delivery-code.png", f.agent, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/orders/"+id+"/delivery-code.png", f.cust, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/proof", f.agent, map[string]any{"type": "code", "payload": wrong})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/proof", f.agent, map[string]any{"type": "signature", "payload": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, done := f.do(t, http.MethodPost, "/orders/"+id+"/proof", f.agent, map[string]any{"type": "code", "payload": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", done["status"])
	assert.Equal(t, "delivered", done["delivery_status"])

	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/transitions", f.admin, map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTransitionsRefuseCourierFields(t *testing.T) {
	f := newFixture(t, "http_transitions")
	f.seedCatalog(t)

	resp, created := f.do(t, http.MethodPost, "/orders", f.cust, deliveryBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/transitions", f.admin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPut, "/agents/A", f.admin, map[string]any{"name": "Alex"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/assign", f.admin, map[string]any{"agent_id": "A"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	bodies := map[string]map[string]any{
		"delivered with proof": {"delivery_status": "delivered", "proof": map[string]any{"type": "code", "payload": "0000"}},
		"delivery status":      {"delivery_status": "picking"},
		"proof only":           {"status": "completed", "proof": map[string]any{"type": "photo", "payload": "x"}},
		"agent":                {"agent_id": "B"},
		"clear agent":          {"clear_agent": true},
		"complete delivery":    {"status": "completed"},
		"empty":                {},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp, out := f.do(t, http.MethodPost, "/orders/"+id+"/transitions", "", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	resp, got := f.do(t, http.MethodGet, "/orders/"+id, f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", got["status"])
	assert.Equal(t, "ready_for_logistics", got["delivery_status"])
	assert.Equal(t, "A", got["delivery_agent_id"])
	assert.Nil(t, got["proof_of_delivery"])

	pickup, err := f.orders.Create(context.Background(), testutil.NewOrder(models.OrderTypePickup, "cust-1"))
	require.NoError(t, err)
	for _, st := range []string{"approved", "completed"} {
		resp, out := f.do(t, http.MethodPost, "/orders/"+string(pickup.ID)+"/transitions", f.admin, map[string]any{"status": st})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, st, out["status"])
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, "http_validation")
	cases := map[string]map[string]any{
		"unknown type": {"customer_id": "c", "type": "drone", "items": deliveryBody["items"]},
		"no items":     {"customer_id": "c", "type": "pickup", "items": []any{}},
		"zero qty":     {"customer_id": "c", "type": "pickup", "items": []map[string]any{{"catalog_item_id": "x", "name": "X", "unit_price": 1, "quantity": 0}}},
		"no address":   {"customer_id": "c", "type": "delivery", "items": deliveryBody["items"]},
		"no customer":  {"type": "pickup", "items": deliveryBody["items"]},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, out := f.do(t, http.MethodPost, "/orders", "", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	resp, _ := f.do(t, http.MethodPost, "/orders", "not-a-jwt", deliveryBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListOrdersPagination(t *testing.T) {
	f := newFixture(t, "http_list")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.orders.Create(ctx, testutil.NewOrder(models.OrderTypePickup, "cust-1"))
		require.NoError(t, err)
	}
	_, err := f.orders.Create(ctx, testutil.NewOrder(models.OrderTypeDineIn, "cust-2"))
	require.NoError(t, err)

	seen := map[string]bool{}
	path := "/orders?customer_id=cust-1&page_size=2"
	for pages := 0; pages < 5; pages++ {
		resp, body := f.do(t, http.MethodGet, path, f.admin, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		for _, o := range body["orders"].([]any) {
			seen[o.(map[string]any)["id"].(string)] = true
		}
		tok, _ := body["next_page_token"].(string)
		if tok == "" {
			break
		}
		path = "/orders?customer_id=cust-1&page_size=2&page_token=" + tok
	}
	assert.Len(t, seen, 5)

	resp, _ := f.do(t, http.MethodGet, "/orders?page_token=bm9wZQ", f.admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/orders?status=shipped", f.admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateOrderFields(t *testing.T) {
	f := newFixture(t, "http_patch")
	o, err := f.orders.Create(context.Background(), testutil.NewOrder(models.OrderTypeDelivery, "cust-1"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, body := f.do(t, http.MethodPatch, "/orders/"+string(o.ID), f.admin, map[string]any{"delivery_fee": 0, "tax": 100})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 2300, body["total"])
	}
	resp, _ := f.do(t, http.MethodPatch, "/orders/missing", f.admin, map[string]any{"tax": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPatch, "/orders/"+string(o.ID), f.admin, map[string]any{"tax": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/orders/"+string(o.ID)+"/transitions", f.admin, map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPatch, "/orders/"+string(o.ID), f.admin, map[string]any{"tax": 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMessages(t *testing.T) {
	f := newFixture(t, "http_messages")
	o, err := f.orders.Create(context.Background(), testutil.NewOrder(models.OrderTypePickup, "cust-1"))
	require.NoError(t, err)
	path := "/orders/" + string(o.ID) + "/messages"

	resp, m := f.do(t, http.MethodPost, path, f.cust, map[string]any{"text": "where is my food?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "customer", m["sender"])
	resp, _ = f.do(t, http.MethodPost, path, f.admin, map[string]any{"text": "almost ready"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, read := f.do(t, http.MethodPost, path+"/read", f.cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, read["marked"])

	resp, list := f.do(t, http.MethodGet, path, f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list["messages"], 2)

	resp, _ = f.do(t, http.MethodPost, "/orders/missing/messages", f.cust, map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, path, f.cust, map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatalogAdjust(t *testing.T) {
	f := newFixture(t, "http_catalog")
	f.seedCatalog(t)

	resp, body := f.do(t, http.MethodPost, "/catalog/fries/adjust", f.admin, map[string]any{"delta": -15, "note": "spill"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["item"].(map[string]any)["stock"], "stock never goes negative")

	resp, body = f.do(t, http.MethodGet, "/catalog/fries/transactions", f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["transactions"], 1)

	resp, _ = f.do(t, http.MethodPost, "/catalog/ghost/adjust", f.admin, map[string]any{"delta": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/catalog/fries/adjust", f.admin, map[string]any{"delta": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// The notification inbox raises "approved" once for the customer, then lets
// them act on it.
func TestNotifications(t *testing.T) {
	f := newFixture(t, "http_notifications")
	f.seedCatalog(t)

	resp, _ := f.do(t, http.MethodGet, "/notifications", f.cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, created := f.do(t, http.MethodPost, "/orders", f.cust, deliveryBody)
	id := created["id"].(string)
	resp, _ = f.do(t, http.MethodPost, "/orders/"+id+"/transitions", f.admin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []any
	require.Eventually(t, func() bool {
		_, body := f.do(t, http.MethodGet, "/notifications", f.cust, nil)
		list, _ = body["notifications"].([]any)
		return len(list) == 1
	}, 2*time.Second, 20*time.Millisecond)
	n := list[0].(map[string]any)
	assert.Equal(t, "approved", n["kind"])

	resp, act := f.do(t, http.MethodPost, "/notifications/"+n["id"].(string)+"/act", f.cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/orders/"+id+"/tracking", act["tracking_path"])
	resp, _ = f.do(t, http.MethodPost, "/notifications/"+n["id"].(string)+"/dismiss", f.cust, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, f.hub.Running())
}

func TestCatalogServesStaleListWhenStoreDown(t *testing.T) {
	d, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer d.Close()
	catalog := repository.NewCatalogRepository(d)

	s := NewServer(Deps{Catalog: catalog, JWTSecret: secret}, nil)
	h := s.Handler()

	mock.ExpectQuery("SELECT (.+) FROM catalog_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock", "updated_at"}).AddRow("fries", "Fries", 300, 4, int64(0)))
	mock.ExpectQuery("SELECT (.+) FROM catalog_items").WillReturnError(assert.AnError)
	mock.ExpectQuery("SELECT (.+) FROM catalog_items").WillReturnError(assert.AnError)

	var first, second catalogResponse
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Stale)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Stale)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 4, second.Items[0].Stock)

	// A paged request has no cached fallback.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog?offset=5", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		lifecycle.ErrInvalidTransition:       http.StatusConflict,
		lifecycle.ErrProofRequired:           http.StatusConflict,
		lifecycle.ErrOrderNotFound:           http.StatusNotFound,
		dispatch.ErrAgentNotFound:            http.StatusNotFound,
		dispatch.ErrAgentBusy:                http.StatusUnprocessableEntity,
		dispatch.ErrOrderNotEligible:         http.StatusUnprocessableEntity,
		dispatch.ErrProofMismatch:            http.StatusForbidden,
		dispatch.ErrTooManyAttempts:          http.StatusTooManyRequests,
		dispatch.ErrInvalidProof:             http.StatusBadRequest,
		repository.ErrPersistenceUnavailable: http.StatusServiceUnavailable,
		repository.ErrRevisionConflict:       http.StatusConflict,
		repository.ErrOrderClosed:            http.StatusConflict,
		repository.ErrAgentTaken:             http.StatusUnprocessableEntity,
		assert.AnError:                       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
