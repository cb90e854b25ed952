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

// AgentRepository is the directory of delivery agents.
type AgentRepository struct {
	db *sql.DB
}

func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `id, name, phone, vehicle, status, lat, lng, updated_at`

// Upsert inserts or fully overwrites an agent. Status defaults to 'available' if empty.
func (r *AgentRepository) Upsert(ctx context.Context, a *models.DeliveryAgent) (*models.DeliveryAgent, error) {
	if a == nil {
		return nil, errors.New("agent is nil")
	}
	cp := *a
	if cp.ID == "" {
		cp.ID = models.AgentID(uuid.NewString())
	}
	if cp.Status == "" {
		cp.Status = models.AgentStatusAvailable
	}
	if !cp.Status.Valid() {
		return nil, fmt.Errorf("unknown agent status %q", cp.Status)
	}
	if strings.TrimSpace(cp.Name) == "" {
		return nil, errors.New("agent name is required")
	}
	cp.UpdatedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO agents (`+agentColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone, vehicle = excluded.vehicle,
  status = excluded.status, lat = excluded.lat, lng = excluded.lng, updated_at = excluded.updated_at`,
		string(cp.ID), cp.Name, cp.Phone, cp.Vehicle, string(cp.Status), cp.Position.Lat, cp.Position.Lng, toNanos(cp.UpdatedAt))
	if err != nil {
		return nil, unavailable("upsert agent", err)
	}
	return &cp, nil
}

// GetByID returns (nil, nil) for an unknown agent.
func (r *AgentRepository) GetByID(ctx context.Context, id models.AgentID) (*models.DeliveryAgent, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	a, err := scanAgent(r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get agent", err)
	}
	return a, nil
}

func (r *AgentRepository) List(ctx context.Context, limit, offset int) ([]*models.DeliveryAgent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name ASC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, unavailable("list agents", err)
	}
	defer rows.Close()
	var out []*models.DeliveryAgent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, unavailable("list agents", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list agents", err)
	}
	return out, nil
}

func (r *AgentRepository) UpdateStatus(ctx context.Context, id models.AgentID, status models.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown agent status %q", status)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toNanos(time.Now()), string(id))
	return affectedOne("update agent status", res, err)
}

// UpdatePosition records the latest synthesized position. Last write wins.
func (r *AgentRepository) UpdatePosition(ctx context.Context, id models.AgentID, pos models.Position) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE agents SET lat = ?, lng = ?, updated_at = ? WHERE id = ?`,
		pos.Lat, pos.Lng, toNanos(time.Now()), string(id))
	return affectedOne("update agent position", res, err)
}

func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func scanAgent(s rowScanner) (*models.DeliveryAgent, error) {
	var a models.DeliveryAgent
	var id, status string
	var updatedAt int64
	if err := s.Scan(&id, &a.Name, &a.Phone, &a.Vehicle, &status, &a.Position.Lat, &a.Position.Lng, &updatedAt); err != nil {
		return nil, err
	}
	a.ID = models.AgentID(id)
	a.Status = models.AgentStatus(status)
	a.UpdatedAt = fromNanos(updatedAt)
	return &a, nil
}
