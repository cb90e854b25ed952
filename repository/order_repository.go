package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"restaurantDelivery/models"
)

// OrderRepository is the core repository for Order entities.
// Writes after creation go through Save, a compare-and-swap on revision.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, customer_id, type, status, delivery_status, items, subtotal, tax, delivery_fee, total, dest_lat, dest_lng, delivery_agent_id, delivery_code, pod_type, pod_payload, pod_at, created_at, updated_at, revision`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create validates and inserts a new order. Status defaults to pending_approval.
// Creates are not idempotent: each call yields a new order.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	o = o.Clone()
	if o.ID == "" {
		o.ID = models.OrderID(uuid.NewString())
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPendingApproval
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = models.DeliveryStatusPending
	}
	o.DeliveryStatus = o.DeliveryStatus.Canonical()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	o.Revision = 1

	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	destLat, destLng := destArgs(o.Destination)
	podType, podPayload, podAt := proofArgs(o.ProofOfDelivery)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = r.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(o.ID), o.CustomerID, string(o.Type), string(o.Status), string(o.DeliveryStatus), string(items),
		o.Subtotal, o.Tax, o.DeliveryFee, o.Total, destLat, destLng, agentArg(o.DeliveryAgentID), o.DeliveryCode,
		podType, podPayload, podAt, toNanos(o.CreatedAt), toNanos(o.UpdatedAt), o.Revision)
	if err != nil {
		return nil, writeErr("create order", o, err)
	}
	return o, nil
}

// GetByID fetches an order by its ID. A missing order yields (nil, nil).
func (r *OrderRepository) GetByID(ctx context.Context, id models.OrderID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get order", err)
	}
	return o, nil
}

// Save overwrites the mutable fields of o if the stored revision still equals
// expectedRevision. Sale records are applied in the same transaction: stock is
// decremented (never below zero) and each record is appended to the ledger.
// On success o.Revision and o.UpdatedAt reflect the stored row.
func (r *OrderRepository) Save(ctx context.Context, o *models.Order, expectedRevision int64, sale []models.InventoryTransaction) error {
	if o == nil {
		return errors.New("order is nil")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("save order", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	destLat, destLng := destArgs(o.Destination)
	podType, podPayload, podAt := proofArgs(o.ProofOfDelivery)
	res, err := tx.ExecContext(ctx, `
UPDATE orders SET customer_id = ?, status = ?, delivery_status = ?, items = ?, subtotal = ?, tax = ?, delivery_fee = ?, total = ?,
  dest_lat = ?, dest_lng = ?, delivery_agent_id = ?, delivery_code = ?, pod_type = ?, pod_payload = ?, pod_at = ?,
  updated_at = ?, revision = revision + 1
WHERE id = ? AND revision = ?`,
		o.CustomerID, string(o.Status), string(o.DeliveryStatus.Canonical()), string(items), o.Subtotal, o.Tax, o.DeliveryFee, o.Total,
		destLat, destLng, agentArg(o.DeliveryAgentID), o.DeliveryCode, podType, podPayload, podAt,
		toNanos(now), string(o.ID), expectedRevision)
	if err != nil {
		return unavailable("save order", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable("save order", err)
	} else if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, string(o.ID)).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
		} else if err != nil {
			return unavailable("save order", err)
		}
		return fmt.Errorf("order %s at revision %d: %w", o.ID, expectedRevision, ErrRevisionConflict)
	}

	for i := range sale {
		rec := sale[i]
		if _, err := tx.ExecContext(ctx, `UPDATE catalog_items SET stock = MAX(stock + ?, 0), updated_at = ? WHERE id = ?`,
			rec.Delta, toNanos(now), string(rec.CatalogItemID)); err != nil {
			return unavailable("deduct stock", err)
		}
		if err := insertTransaction(ctx, tx, &rec, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("save order", err)
	}
	o.Revision = expectedRevision + 1
	o.UpdatedAt = now
	return nil
}

// OrderPatch lists the fields UpdateFields may overwrite. Nil fields are left alone.
type OrderPatch struct {
	CustomerID  *string
	Destination *models.Position
	Tax         *int64
	DeliveryFee *int64
}

// UpdateFields overwrites the provided fields and recomputes the total.
// Repeating the same patch leaves the same stored values. Completed and
// cancelled orders are read-only.
func (r *OrderRepository) UpdateFields(ctx context.Context, id models.OrderID, patch OrderPatch) (*models.Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		cur, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		if cur.Status.IsTerminal() {
			return nil, fmt.Errorf("order %s is %s: %w", id, cur.Status, ErrOrderClosed)
		}
		next := cur.Clone()
		if patch.CustomerID != nil {
			next.CustomerID = *patch.CustomerID
		}
		if patch.Destination != nil {
			d := *patch.Destination
			next.Destination = &d
		}
		if patch.Tax != nil {
			next.Tax = *patch.Tax
		}
		if patch.DeliveryFee != nil {
			next.DeliveryFee = *patch.DeliveryFee
		}
		next.Total = next.Subtotal + next.Tax + next.DeliveryFee
		if err := next.Validate(); err != nil {
			return nil, err
		}
		err = r.Save(ctx, next, cur.Revision, nil)
		if errors.Is(err, ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("update order %s: %w", id, ErrRevisionConflict)
}

// FindActiveByAgent returns the non-terminal orders referencing the agent.
func (r *OrderRepository) FindActiveByAgent(ctx context.Context, agentID models.AgentID) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
WHERE delivery_agent_id = ? AND status NOT IN ('cancelled','completed')
ORDER BY created_at ASC, id ASC`, string(agentID))
	if err != nil {
		return nil, unavailable("find active by agent", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// writeErr maps a violation of idx_orders_active_agent to ErrAgentTaken.
func writeErr(op string, o *models.Order, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique && o.DeliveryAgentID != nil {
		return fmt.Errorf("%s: agent %s: %w", op, *o.DeliveryAgentID, ErrAgentTaken)
	}
	return unavailable(op, err)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, ex execer, rec *models.InventoryTransaction, now time.Time) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	var orderID any
	if rec.OrderID != nil {
		orderID = string(*rec.OrderID)
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO inventory_transactions (id, catalog_item_id, order_id, kind, delta, note, created_at) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, string(rec.CatalogItemID), orderID, string(rec.Kind), rec.Delta, rec.Note, toNanos(rec.CreatedAt))
	return unavailable("append inventory transaction", err)
}

func scanOrder(s rowScanner) (*models.Order, error) {
	var o models.Order
	var id, typ, status, deliveryStatus, items string
	var destLat, destLng sql.NullFloat64
	var agentID, podType, podPayload sql.NullString
	var podAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := s.Scan(&id, &o.CustomerID, &typ, &status, &deliveryStatus, &items, &o.Subtotal, &o.Tax, &o.DeliveryFee, &o.Total,
		&destLat, &destLng, &agentID, &o.DeliveryCode, &podType, &podPayload, &podAt, &createdAt, &updatedAt, &o.Revision); err != nil {
		return nil, err
	}
	o.ID = models.OrderID(id)
	o.Type = models.OrderType(typ)
	o.Status = models.OrderStatus(status)
	o.DeliveryStatus = models.DeliveryStatus(deliveryStatus).Canonical()
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", id, err)
	}
	if destLat.Valid && destLng.Valid {
		o.Destination = &models.Position{Lat: destLat.Float64, Lng: destLng.Float64}
	}
	if agentID.Valid && agentID.String != "" {
		a := models.AgentID(agentID.String)
		o.DeliveryAgentID = &a
	}
	if podType.Valid {
		o.ProofOfDelivery = &models.ProofOfDelivery{
			Type:      models.ProofType(podType.String),
			Payload:   podPayload.String,
			Timestamp: fromNanos(podAt.Int64),
		}
	}
	o.CreatedAt = fromNanos(createdAt)
	o.UpdatedAt = fromNanos(updatedAt)
	return &o, nil
}

func scanOrderRows(rows *sql.Rows) ([]models.Order, error) {
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan order", err)
	}
	return out, nil
}

func destArgs(p *models.Position) (any, any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}

func agentArg(a *models.AgentID) any {
	if a == nil {
		return nil
	}
	return string(*a)
}

func proofArgs(p *models.ProofOfDelivery) (any, any, any) {
	if p == nil {
		return nil, nil, nil
	}
	return string(p.Type), p.Payload, toNanos(p.Timestamp)
}
