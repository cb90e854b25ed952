package models

import "time"

// AgentID identifies a delivery agent.
type AgentID string

// AgentStatus represents the availability of a delivery agent.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
	AgentStatusOnBreak   AgentStatus = "on_break"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusAvailable, AgentStatusBusy, AgentStatusOffline, AgentStatusOnBreak:
		return true
	}
	return false
}

// DeliveryAgent represents a courier. Position is synthesized by the
// simulator while a delivery is in progress.
type DeliveryAgent struct {
	ID        AgentID     `json:"id"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	Vehicle   string      `json:"vehicle"`
	Status    AgentStatus `json:"status"`
	Position  Position    `json:"position"`
	UpdatedAt time.Time   `json:"updated_at"`
}
