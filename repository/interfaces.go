package repository

import (
	"context"

	"restaurantDelivery/models"
)

// OrderRepositoryI defines operations on Order entities.
type OrderRepositoryI interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id models.OrderID) (*models.Order, error)
	List(ctx context.Context, p ListOrdersParams) ([]models.Order, error)
	UpdateFields(ctx context.Context, id models.OrderID, patch OrderPatch) (*models.Order, error)
	Save(ctx context.Context, o *models.Order, expectedRevision int64, sale []models.InventoryTransaction) error
	FindActiveByAgent(ctx context.Context, agentID models.AgentID) ([]models.Order, error)
}

// AgentRepositoryI defines operations on delivery agents.
type AgentRepositoryI interface {
	Upsert(ctx context.Context, a *models.DeliveryAgent) (*models.DeliveryAgent, error)
	GetByID(ctx context.Context, id models.AgentID) (*models.DeliveryAgent, error)
	List(ctx context.Context, limit, offset int) ([]*models.DeliveryAgent, error)
	UpdateStatus(ctx context.Context, id models.AgentID, status models.AgentStatus) error
	UpdatePosition(ctx context.Context, id models.AgentID, pos models.Position) error
}

// CatalogRepositoryI defines stock and inventory ledger operations.
type CatalogRepositoryI interface {
	Upsert(ctx context.Context, it *models.CatalogItem) (*models.CatalogItem, error)
	GetByID(ctx context.Context, id models.CatalogItemID) (*models.CatalogItem, error)
	List(ctx context.Context, limit, offset int) ([]*models.CatalogItem, error)
	AdjustStock(ctx context.Context, id models.CatalogItemID, delta int) (*models.CatalogItem, error)
	AppendTransaction(ctx context.Context, rec *models.InventoryTransaction) (*models.InventoryTransaction, error)
	ListTransactions(ctx context.Context, id models.CatalogItemID) ([]models.InventoryTransaction, error)
}

// MessageRepositoryI defines the per-order chat thread.
type MessageRepositoryI interface {
	Append(ctx context.Context, orderID models.OrderID, m *models.OrderMessage) (*models.OrderMessage, error)
	ListByOrder(ctx context.Context, orderID models.OrderID) ([]models.OrderMessage, error)
	MarkRead(ctx context.Context, orderID models.OrderID, reader models.SenderRole) (int64, error)
}
