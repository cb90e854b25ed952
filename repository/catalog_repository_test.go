package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantDelivery/internal/testutil"
	"restaurantDelivery/models"
)

func TestCatalogRepository_AdjustAndLedger(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "catalogrepo")
	catalog := NewCatalogRepository(d)
	ctx := context.Background()

	it, err := catalog.Upsert(ctx, &models.CatalogItem{Name: "Soup", Price: 450, Stock: 3})
	require.NoError(t, err)

	got, err := catalog.AdjustStock(ctx, it.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)

	got, err = catalog.AdjustStock(ctx, it.ID, -20)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	_, err = catalog.AdjustStock(ctx, "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := catalog.AppendTransaction(ctx, &models.InventoryTransaction{CatalogItemID: it.ID, Delta: 5, Kind: models.InventoryKindRestock, Note: "delivery"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	_, err = catalog.AppendTransaction(ctx, &models.InventoryTransaction{CatalogItemID: it.ID, Delta: -20})
	require.NoError(t, err)

	ledger, err := catalog.ListTransactions(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, models.InventoryKindRestock, ledger[0].Kind)
	assert.Equal(t, models.InventoryKindAdjustment, ledger[1].Kind)
	assert.Nil(t, ledger[1].OrderID)

	items, err := catalog.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Soup", items[0].Name)
}
