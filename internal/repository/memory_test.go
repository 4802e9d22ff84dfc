package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
)

func TestMemoryStore_ItemsKeepInsertionOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx CartTx) error {
		for _, id := range []int64{3, 1, 2} {
			require.NoError(t, tx.InsertProduct(ctx, &domain.Product{ID: id, Name: "p"}))
		}
		header := &domain.CartHeader{UserID: "u1"}
		require.NoError(t, tx.InsertHeader(ctx, header))
		for _, id := range []int64{3, 1, 2} {
			require.NoError(t, tx.InsertLineItem(ctx, &domain.CartLineItem{
				HeaderID:  header.ID,
				ProductID: id,
				Count:     1,
			}))
		}
		return nil
	})
	require.NoError(t, err)

	cart, err := store.GetCartByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)
	assert.Equal(t, int64(3), cart.Items[0].ProductID)
	assert.Equal(t, int64(1), cart.Items[1].ProductID)
	assert.Equal(t, int64(2), cart.Items[2].ProductID)
}

func TestMemoryStore_DuplicateSentinels(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx CartTx) error {
		require.NoError(t, tx.InsertProduct(ctx, &domain.Product{ID: 1, Name: "first"}))
		assert.ErrorIs(t, tx.InsertProduct(ctx, &domain.Product{ID: 1, Name: "second"}), ErrDuplicateProduct)

		header := &domain.CartHeader{UserID: "u1"}
		require.NoError(t, tx.InsertHeader(ctx, header))
		assert.ErrorIs(t, tx.InsertHeader(ctx, &domain.CartHeader{UserID: "u1"}), ErrDuplicateHeader)

		item := &domain.CartLineItem{HeaderID: header.ID, ProductID: 1, Count: 1}
		require.NoError(t, tx.InsertLineItem(ctx, item))
		assert.ErrorIs(t, tx.InsertLineItem(ctx, &domain.CartLineItem{
			HeaderID:  header.ID,
			ProductID: 1,
			Count:     2,
		}), ErrDuplicateItem)

		// First write won.
		p, err := tx.FindProductByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "first", p.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_DeleteSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var itemID, headerID int64
	err := store.InTx(ctx, func(tx CartTx) error {
		require.NoError(t, tx.InsertProduct(ctx, &domain.Product{ID: 1}))
		header := &domain.CartHeader{UserID: "u1"}
		require.NoError(t, tx.InsertHeader(ctx, header))
		headerID = header.ID
		item := &domain.CartLineItem{HeaderID: header.ID, ProductID: 1, Count: 1}
		require.NoError(t, tx.InsertLineItem(ctx, item))
		itemID = item.ID
		return nil
	})
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx CartTx) error {
		removed, err := tx.DeleteLineItem(ctx, itemID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = tx.DeleteLineItem(ctx, itemID)
		require.NoError(t, err)
		assert.False(t, removed)

		assert.ErrorIs(t, tx.UpdateLineItemCount(ctx, itemID, 5), ErrItemNotFound)

		require.NoError(t, tx.DeleteHeader(ctx, headerID))
		return nil
	})
	require.NoError(t, err)

	_, err = store.GetCartByUserID(ctx, "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}
