package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurantDelivery/models"
)

// CatalogRepository stores stock levels and the inventory ledger.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Upsert inserts or overwrites a catalog item. Negative stock is stored as zero.
func (r *CatalogRepository) Upsert(ctx context.Context, it *models.CatalogItem) (*models.CatalogItem, error) {
	if it == nil {
		return nil, errors.New("catalog item is nil")
	}
	cp := *it
	if cp.ID == "" {
		cp.ID = models.CatalogItemID(uuid.NewString())
	}
	if strings.TrimSpace(cp.Name) == "" {
		return nil, errors.New("catalog item name is required")
	}
	if cp.Stock < 0 {
		cp.Stock = 0
	}
	cp.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO catalog_items (id, name, price, stock, updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, price = excluded.price, stock = excluded.stock, updated_at = excluded.updated_at`,
		string(cp.ID), cp.Name, cp.Price, cp.Stock, toNanos(cp.UpdatedAt))
	if err != nil {
		return nil, unavailable("upsert catalog item", err)
	}
	return &cp, nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id models.CatalogItemID) (*models.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	it, err := scanCatalogItem(r.db.QueryRowContext(ctx, `SELECT id, name, price, stock, updated_at FROM catalog_items WHERE id = ?`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("get catalog item", err)
	}
	return it, nil
}

func (r *CatalogRepository) List(ctx context.Context, limit, offset int) ([]*models.CatalogItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, price, stock, updated_at FROM catalog_items ORDER BY name ASC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, unavailable("list catalog", err)
	}
	defer rows.Close()
	var out []*models.CatalogItem
	for rows.Next() {
		it, err := scanCatalogItem(rows)
		if err != nil {
			return nil, unavailable("list catalog", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list catalog", err)
	}
	return out, nil
}

// AdjustStock adds delta to the stock level, flooring at zero, and returns the new row.
func (r *CatalogRepository) AdjustStock(ctx context.Context, id models.CatalogItemID, delta int) (*models.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE catalog_items SET stock = MAX(stock + ?, 0), updated_at = ? WHERE id = ?`,
		delta, toNanos(time.Now()), string(id))
	if err := affectedOne("adjust stock", res, err); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// AppendTransaction records a stock movement in the ledger.
func (r *CatalogRepository) AppendTransaction(ctx context.Context, rec *models.InventoryTransaction) (*models.InventoryTransaction, error) {
	if rec == nil {
		return nil, errors.New("inventory transaction is nil")
	}
	cp := *rec
	if cp.Kind == "" {
		cp.Kind = models.InventoryKindAdjustment
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := insertTransaction(ctx, r.db, &cp, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ListTransactions returns the ledger of one item, oldest first.
func (r *CatalogRepository) ListTransactions(ctx context.Context, id models.CatalogItemID) ([]models.InventoryTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, catalog_item_id, order_id, kind, delta, note, created_at
FROM inventory_transactions WHERE catalog_item_id = ? ORDER BY created_at ASC, rowid ASC`, string(id))
	if err != nil {
		return nil, unavailable("list inventory", err)
	}
	defer rows.Close()
	var out []models.InventoryTransaction
	for rows.Next() {
		var rec models.InventoryTransaction
		var itemID, kind string
		var orderID sql.NullString
		var createdAt int64
		if err := rows.Scan(&rec.ID, &itemID, &orderID, &kind, &rec.Delta, &rec.Note, &createdAt); err != nil {
			return nil, unavailable("list inventory", err)
		}
		rec.CatalogItemID = models.CatalogItemID(itemID)
		rec.Kind = models.InventoryKind(kind)
		if orderID.Valid {
			oid := models.OrderID(orderID.String)
			rec.OrderID = &oid
		}
		rec.CreatedAt = fromNanos(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list inventory", err)
	}
	return out, nil
}

func scanCatalogItem(s rowScanner) (*models.CatalogItem, error) {
	var it models.CatalogItem
	var id string
	var updatedAt int64
	if err := s.Scan(&id, &it.Name, &it.Price, &it.Stock, &updatedAt); err != nil {
		return nil, err
	}
	it.ID = models.CatalogItemID(id)
	it.UpdatedAt = fromNanos(updatedAt)
	return &it, nil
}
