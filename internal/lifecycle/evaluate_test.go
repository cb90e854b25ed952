package lifecycle

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantDelivery/models"
)

func statusPtr(s models.OrderStatus) *models.OrderStatus         { return &s }
func deliveryPtr(s models.DeliveryStatus) *models.DeliveryStatus { return &s }
func fixedCode(code string) CodeGenerator                        { return func() (string, error) { return code, nil } }

var now = time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

func order(typ models.OrderType, st models.OrderStatus) *models.Order {
	return &models.Order{
		ID:             "o-1",
		Type:           typ,
		Status:         st,
		DeliveryStatus: models.DeliveryStatusPending,
		Items: []models.LineItem{
			{CatalogItemID: "pizza", Name: "Pizza", UnitPrice: 1000, Quantity: 1},
			{CatalogItemID: "soda", Name: "Soda", UnitPrice: 500, Quantity: 2},
		},
		Subtotal: 2000,
		Total:    2000,
		Revision: 1,
	}
}

func TestValidStatusTransition(t *testing.T) {
	tests := []struct {
		from, to models.OrderStatus
		want     bool
	}{
		{models.OrderStatusPendingApproval, models.OrderStatusApproved, true},
		{models.OrderStatusPendingApproval, models.OrderStatusCancelled, true},
		{models.OrderStatusPendingApproval, models.OrderStatusCompleted, false},
		{models.OrderStatusApproved, models.OrderStatusCompleted, true},
		{models.OrderStatusApproved, models.OrderStatusApproved, true},
		{models.OrderStatusApproved, models.OrderStatusCancelled, false},
		{models.OrderStatusApproved, models.OrderStatusPendingApproval, false},
		{models.OrderStatusCancelled, models.OrderStatusApproved, false},
		{models.OrderStatusCompleted, models.OrderStatusApproved, false},
		{"", models.OrderStatusApproved, false},
		{models.OrderStatusPendingApproval, "", false},
	}
	for _, tt := range tests {
		got := ValidStatusTransition(tt.from, tt.to)
		if got != tt.want {
			t.Errorf("ValidStatusTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEvaluate_ApproveIssuesCodeAndSale(t *testing.T) {
	cur := order(models.OrderTypeDelivery, models.OrderStatusPendingApproval)
	next, eff, err := Evaluate(cur, Transition{Status: statusPtr(models.OrderStatusApproved)}, now, fixedCode("4821"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusApproved, next.Status)
	assert.Equal(t, "4821", next.DeliveryCode)
	assert.True(t, eff.CodeIssued)
	assert.True(t, eff.Changed)
	require.Len(t, eff.Sale, 2)
	assert.Equal(t, models.CatalogItemID("pizza"), eff.Sale[0].CatalogItemID)
	assert.Equal(t, -1, eff.Sale[0].Delta)
	assert.Equal(t, -2, eff.Sale[1].Delta)
	assert.Equal(t, models.InventoryKindSale, eff.Sale[1].Kind)
	assert.Equal(t, now, next.UpdatedAt)
	assert.Equal(t, models.OrderStatusPendingApproval, cur.Status, "input is not mutated")
}

func TestEvaluate_SecondApproveIsNoOp(t *testing.T) {
	cur := order(models.OrderTypePickup, models.OrderStatusApproved)
	cur.DeliveryCode = "1234"
	calls := 0
	gen := func() (string, error) { calls++; return "9999", nil }

	next, eff, err := Evaluate(cur, Transition{Status: statusPtr(models.OrderStatusApproved)}, now, gen)
	require.NoError(t, err)
	assert.False(t, eff.Changed)
	assert.Empty(t, eff.Sale)
	assert.Equal(t, "1234", next.DeliveryCode)
	assert.Zero(t, calls)
}

func TestEvaluate_TerminalStatusesRejectEverything(t *testing.T) {
	for _, st := range []models.OrderStatus{models.OrderStatusCancelled, models.OrderStatusCompleted} {
		cur := order(models.OrderTypeDelivery, st)
		for _, tr := range []Transition{
			{Status: statusPtr(models.OrderStatusApproved)},
			{Status: statusPtr(st)},
			{DeliveryStatus: deliveryPtr(models.DeliveryStatusPicking)},
		} {
			_, _, err := Evaluate(cur, tr, now, fixedCode("1111"))
			assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", st)
		}
	}
}

func TestEvaluate_StatusEdges(t *testing.T) {
	cur := order(models.OrderTypeDineIn, models.OrderStatusPendingApproval)
	next, _, err := Evaluate(cur, Transition{Status: statusPtr(models.OrderStatusCancelled)}, now, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, next.Status)

	_, _, err = Evaluate(cur, Transition{Status: statusPtr(models.OrderStatusCompleted)}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	approved := order(models.OrderTypeDineIn, models.OrderStatusApproved)
	_, _, err = Evaluate(approved, Transition{Status: statusPtr(models.OrderStatusCancelled)}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	next, eff, err := Evaluate(approved, Transition{Status: statusPtr(models.OrderStatusCompleted)}, now, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, next.Status)
	assert.Nil(t, next.ProofOfDelivery, "non-delivery orders complete without proof")
	assert.True(t, eff.Changed)

	_, _, err = Evaluate(approved, Transition{}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEvaluate_DeliveryStatusIgnoredOnNonDeliveryOrders(t *testing.T) {
	cur := order(models.OrderTypePickup, models.OrderStatusApproved)
	next, eff, err := Evaluate(cur, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusOnWay)}, now, nil)
	require.NoError(t, err)
	assert.False(t, eff.Changed)
	assert.Equal(t, models.DeliveryStatusPending, next.DeliveryStatus)
}

func TestEvaluate_DeliveryStatusMovesForwardOnly(t *testing.T) {
	cur := order(models.OrderTypeDelivery, models.OrderStatusApproved)
	cur.DeliveryStatus = models.DeliveryStatusPickedUp

	_, _, err := Evaluate(cur, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusPicking)}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// "packing" is the legacy label for picked_up: same stage, no change.
	next, eff, err := Evaluate(cur, Transition{DeliveryStatus: deliveryPtr("packing")}, now, nil)
	require.NoError(t, err)
	assert.False(t, eff.Changed)
	assert.Equal(t, models.DeliveryStatusPickedUp, next.DeliveryStatus)

	next, _, err = Evaluate(cur, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusOnWay)}, now, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusOnWay, next.DeliveryStatus)

	_, _, err = Evaluate(cur, Transition{DeliveryStatus: deliveryPtr("teleported")}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	pending := order(models.OrderTypeDelivery, models.OrderStatusPendingApproval)
	_, _, err = Evaluate(pending, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusPicking)}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition, "delivery status needs approval first")
}

func TestEvaluate_DeliveredRequiresProof(t *testing.T) {
	cur := order(models.OrderTypeDelivery, models.OrderStatusApproved)
	cur.DeliveryStatus = models.DeliveryStatusOnWay
	cur.DeliveryCode = "2468"

	_, _, err := Evaluate(cur, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusDelivered)}, now, nil)
	assert.ErrorIs(t, err, ErrProofRequired)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = Evaluate(cur, Transition{Status: statusPtr(models.OrderStatusCompleted)}, now, nil)
	assert.True(t, errors.Is(err, ErrProofRequired))

	// The machine checks presence only; the dispatcher verifies the code.
	pod := &models.ProofOfDelivery{Type: models.ProofTypeCode, Payload: "0000"}
	next, eff, err := Evaluate(cur, Transition{DeliveryStatus: deliveryPtr(models.DeliveryStatusDelivered), Proof: pod}, now, nil)
	require.NoError(t, err)
	assert.True(t, eff.Changed)
	assert.Equal(t, models.OrderStatusCompleted, next.Status)
	assert.Equal(t, models.DeliveryStatusDelivered, next.DeliveryStatus)
	require.NotNil(t, next.ProofOfDelivery)
	assert.Equal(t, now, next.ProofOfDelivery.Timestamp)
}

func TestEvaluate_AgentAssignmentAndClear(t *testing.T) {
	cur := order(models.OrderTypeDelivery, models.OrderStatusApproved)
	agent := models.AgentID("a-7")
	next, eff, err := Evaluate(cur, Transition{AgentID: &agent, DeliveryStatus: deliveryPtr(models.DeliveryStatusReadyForLogistics)}, now, nil)
	require.NoError(t, err)
	assert.True(t, eff.Changed)
	require.NotNil(t, next.DeliveryAgentID)
	assert.Equal(t, agent, *next.DeliveryAgentID)
	assert.Equal(t, models.DeliveryStatusReadyForLogistics, next.DeliveryStatus)

	next.DeliveryStatus = models.DeliveryStatusPicking
	cleared, _, err := Evaluate(next, Transition{ClearAgent: true}, now, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.DeliveryAgentID)
	assert.Equal(t, models.DeliveryStatusPending, cleared.DeliveryStatus)

	next.DeliveryStatus = models.DeliveryStatusOnWay
	_, _, err = Evaluate(next, Transition{ClearAgent: true}, now, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeliveryCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := DeliveryCode()
		require.NoError(t, err)
		require.Len(t, code, 4)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}
