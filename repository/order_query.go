package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"restaurantDelivery/models"
)

// ListOrdersParams represents filters and pagination for List.
type ListOrdersParams struct {
	Statuses   []models.OrderStatus
	Types      []models.OrderType
	CustomerID *string
	AgentID    *models.AgentID
	PageSize   int
	// Keyset cursor from the last row of the previous page (see Cursor).
	AfterCreated int64
	AfterID      models.OrderID
}

// ErrBadCursor is returned by DecodeCursor for malformed page tokens.
var ErrBadCursor = errors.New("bad page token")

// Cursor returns the opaque page token pointing after o.
func Cursor(o models.Order) string {
	raw := strconv.FormatInt(toNanos(o.CreatedAt), 10) + ":" + string(o.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor splits a page token into its keyset parts.
func DecodeCursor(token string) (int64, models.OrderID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return 0, "", ErrBadCursor
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", ErrBadCursor
	}
	return n, models.OrderID(id), nil
}

// List returns orders matching filters ordered by created_at desc, id desc with keyset pagination.
func (r *OrderRepository) List(ctx context.Context, p ListOrdersParams) ([]models.Order, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any

	if len(p.Statuses) > 0 {
		placeholders := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(p.Types) > 0 {
		placeholders := make([]string, len(p.Types))
		for i, t := range p.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ",")+")")
	}
	if p.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *p.CustomerID)
	}
	if p.AgentID != nil {
		where = append(where, "delivery_agent_id = ?")
		args = append(args, string(*p.AgentID))
	}
	if p.AfterID != "" {
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, p.AfterCreated, p.AfterCreated, string(p.AfterID))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, p.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// ListAll walks every page of List. Intended for reconciliation sweeps.
func (r *OrderRepository) ListAll(ctx context.Context, p ListOrdersParams) ([]models.Order, error) {
	p.PageSize = 100
	var out []models.Order
	for {
		page, err := r.List(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("list all: %w", err)
		}
		out = append(out, page...)
		if len(page) < p.PageSize {
			return out, nil
		}
		last := page[len(page)-1]
		p.AfterCreated, p.AfterID = toNanos(last.CreatedAt), last.ID
	}
}
