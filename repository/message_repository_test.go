package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantDelivery/internal/testutil"
	"restaurantDelivery/models"
)

func TestMessageRepository_AppendListMarkRead(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "messagerepo")
	orders := NewOrderRepository(d)
	messages := NewMessageRepository(d)
	ctx := context.Background()

	o, err := orders.Create(ctx, testutil.NewOrder(models.OrderTypeDelivery, "cust-1"))
	require.NoError(t, err)

	_, err = messages.Append(ctx, o.ID, &models.OrderMessage{Sender: models.SenderCustomer, Text: "ring the bell"})
	require.NoError(t, err)
	_, err = messages.Append(ctx, o.ID, &models.OrderMessage{Sender: models.SenderAgent, Text: "5 minutes away"})
	require.NoError(t, err)

	thread, err := messages.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "ring the bell", thread[0].Text)
	assert.False(t, thread[1].Read)

	n, err := messages.MarkRead(ctx, o.ID, models.SenderCustomer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	thread, _ = messages.ListByOrder(ctx, o.ID)
	assert.False(t, thread[0].Read, "own messages stay unread")
	assert.True(t, thread[1].Read)

	_, err = messages.Append(ctx, "ghost", &models.OrderMessage{Sender: models.SenderAdmin, Text: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = messages.Append(ctx, o.ID, &models.OrderMessage{Sender: "robot", Text: "hi"})
	assert.Error(t, err)
}
