package models

import "time"

// MessageID identifies an order chat message.
type MessageID string

// SenderRole is who wrote a chat message.
type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAgent    SenderRole = "agent"
	SenderAdmin    SenderRole = "admin"
)

// Valid reports whether r is a known sender role.
func (r SenderRole) Valid() bool {
	return r == SenderCustomer || r == SenderAgent || r == SenderAdmin
}

// OrderMessage is an append-only chat entry owned by an order.
type OrderMessage struct {
	ID        MessageID  `json:"id"`
	OrderID   OrderID    `json:"order_id"`
	Sender    SenderRole `json:"sender"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
}
