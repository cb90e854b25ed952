package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurantDelivery/models"
)

// MessageRepository stores the append-only chat thread of each order.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append adds a message to the order's thread. ErrNotFound if the order does not exist.
func (r *MessageRepository) Append(ctx context.Context, orderID models.OrderID, m *models.OrderMessage) (*models.OrderMessage, error) {
	if m == nil {
		return nil, errors.New("message is nil")
	}
	cp := *m
	cp.OrderID = orderID
	if !cp.Sender.Valid() {
		return nil, fmt.Errorf("unknown sender %q", cp.Sender)
	}
	if strings.TrimSpace(cp.Text) == "" {
		return nil, errors.New("message text is required")
	}
	cp.ID = models.MessageID(uuid.NewString())
	cp.CreatedAt = time.Now().UTC()
	cp.Read = false

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO order_messages (id, order_id, sender, text, read, created_at)
SELECT ?, ?, ?, ?, 0, ? WHERE EXISTS (SELECT 1 FROM orders WHERE id = ?)`,
		string(cp.ID), string(orderID), string(cp.Sender), cp.Text, toNanos(cp.CreatedAt), string(orderID))
	if err := affectedOne("append message", res, err); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ListByOrder returns the thread oldest first.
func (r *MessageRepository) ListByOrder(ctx context.Context, orderID models.OrderID) ([]models.OrderMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, sender, text, read, created_at FROM order_messages
WHERE order_id = ? ORDER BY created_at ASC, rowid ASC`, string(orderID))
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	defer rows.Close()
	var out []models.OrderMessage
	for rows.Next() {
		var m models.OrderMessage
		var id, oid, sender string
		var createdAt int64
		if err := rows.Scan(&id, &oid, &sender, &m.Text, &m.Read, &createdAt); err != nil {
			return nil, unavailable("list messages", err)
		}
		m.ID = models.MessageID(id)
		m.OrderID = models.OrderID(oid)
		m.Sender = models.SenderRole(sender)
		m.CreatedAt = fromNanos(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list messages", err)
	}
	return out, nil
}

// MarkRead flags every message not written by reader as read and returns how many changed.
func (r *MessageRepository) MarkRead(ctx context.Context, orderID models.OrderID, reader models.SenderRole) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE order_messages SET read = 1 WHERE order_id = ? AND sender <> ? AND read = 0`,
		string(orderID), string(reader))
	if err != nil {
		return 0, unavailable("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("mark read", err)
	}
	return n, nil
}
