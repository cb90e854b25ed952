package testutil

import (
	"context"
	"database/sql"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"restaurantDelivery/internal/db"
	"restaurantDelivery/models"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The database is closed via t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// Shared cache keeps one database across pooled connections; a single
	// connection avoids "table is locked" errors from background goroutines.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// NewOrder returns a valid, unsaved order of the given type with two line items
// referencing catalog items "burger" (qty 2) and "fries" (qty 1).
func NewOrder(typ models.OrderType, customerID string) *models.Order {
	o := &models.Order{
		CustomerID: customerID,
		Type:       typ,
		Items: []models.LineItem{
			{CatalogItemID: "burger", Name: "Burger", UnitPrice: 850, Quantity: 2,
				Options: []models.LineOption{{Name: "cheese", Price: 100}}},
			{CatalogItemID: "fries", Name: "Fries", UnitPrice: 300, Quantity: 1},
		},
		Tax: 200,
	}
	if typ == models.OrderTypeDelivery {
		o.DeliveryFee = 400
		o.Destination = &models.Position{Lat: 40.7128, Lng: -74.0060}
	}
	o.Subtotal = o.ItemsSubtotal()
	o.Total = o.Subtotal + o.Tax + o.DeliveryFee
	return o
}

// GenerateJWTHS256 returns a signed JWT string with minimal claims used by the app.
func GenerateJWTHS256(t *testing.T, secret, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}
