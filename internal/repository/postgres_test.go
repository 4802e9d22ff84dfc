package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/repository"
	"github.com/fjod/go_cart/cart-aggregation-service/internal/service"
)

func setupTestDB(t *testing.T) (*repository.PostgresStore, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &repository.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../migrations",
	}

	store, err := repository.NewPostgresStore(creds)
	require.NoError(t, err)

	err = store.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

func TestPostgres_GetCartByUserID_NotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.GetCartByUserID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestPostgres_TxOperations(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var headerID, itemID int64
	err := store.InTx(ctx, func(tx repository.CartTx) error {
		_, err := tx.FindProductByID(ctx, 42)
		assert.ErrorIs(t, err, repository.ErrProductNotFound)

		require.NoError(t, tx.InsertProduct(ctx, &domain.Product{
			ID:    42,
			Name:  "widget",
			Price: 9.99,
		}))
		assert.ErrorIs(t, tx.InsertProduct(ctx, &domain.Product{
			ID:   42,
			Name: "other widget",
		}), repository.ErrDuplicateProduct)

		header := &domain.CartHeader{UserID: "u1", CouponCode: "TENOFF"}
		require.NoError(t, tx.InsertHeader(ctx, header))
		require.NotZero(t, header.ID)
		headerID = header.ID

		item := &domain.CartLineItem{HeaderID: header.ID, ProductID: 42, Count: 2}
		require.NoError(t, tx.InsertLineItem(ctx, item))
		require.NotZero(t, item.ID)
		itemID = item.ID

		return nil
	})
	require.NoError(t, err)

	cart, err := store.GetCartByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, headerID, cart.Header.ID)
	assert.Equal(t, "TENOFF", cart.Header.CouponCode)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, itemID, cart.Items[0].ID)
	assert.Equal(t, 2, cart.Items[0].Count)
	require.NotNil(t, cart.Items[0].Product)
	// First write won: the snapshot kept the original name.
	assert.Equal(t, "widget", cart.Items[0].Product.Name)

	err = store.InTx(ctx, func(tx repository.CartTx) error {
		require.NoError(t, tx.UpdateLineItemCount(ctx, itemID, 5))

		removed, err := tx.DeleteLineItem(ctx, itemID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = tx.DeleteLineItem(ctx, itemID)
		require.NoError(t, err)
		assert.False(t, removed)

		assert.ErrorIs(t, tx.UpdateLineItemCount(ctx, itemID, 1), repository.ErrItemNotFound)

		require.NoError(t, tx.DeleteLineItemsByHeader(ctx, headerID))
		require.NoError(t, tx.DeleteHeader(ctx, headerID))
		return nil
	})
	require.NoError(t, err)

	_, err = store.GetCartByUserID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestPostgres_RollbackLeavesNoPartialState(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	boom := assert.AnError
	err := store.InTx(ctx, func(tx repository.CartTx) error {
		require.NoError(t, tx.InsertProduct(ctx, &domain.Product{ID: 7, Name: "doomed"}))
		header := &domain.CartHeader{UserID: "u1"}
		require.NoError(t, tx.InsertHeader(ctx, header))
		require.NoError(t, tx.InsertLineItem(ctx, &domain.CartLineItem{
			HeaderID:  header.ID,
			ProductID: 7,
			Count:     1,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetCartByUserID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)

	err = store.InTx(ctx, func(tx repository.CartTx) error {
		_, err := tx.FindProductByID(ctx, 7)
		assert.ErrorIs(t, err, repository.ErrProductNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgres_InsertHeader_ConflictKeepsTxAlive(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx repository.CartTx) error {
		return tx.InsertHeader(ctx, &domain.CartHeader{UserID: "u1"})
	})
	require.NoError(t, err)

	// A second insert must report the conflict without aborting the
	// transaction, so the caller can fall back to a locked re-read.
	err = store.InTx(ctx, func(tx repository.CartTx) error {
		insertErr := tx.InsertHeader(ctx, &domain.CartHeader{UserID: "u1"})
		assert.ErrorIs(t, insertErr, repository.ErrDuplicateHeader)

		header, err := tx.FindHeaderForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", header.UserID)
		return nil
	})
	require.NoError(t, err)
}

// Regression test for the lost-update race against real row locks: N
// concurrent count=1 adds must end at exactly N.
func TestPostgres_ConcurrentIncrements(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	svc := service.NewCartService(store)

	const n = 20
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.AddItem(gctx, service.UpsertRequest{
				UserID: "u1",
				Product: domain.Product{
					ID:    42,
					Name:  "widget",
					Price: 9.99,
				},
				Count: 1,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	cart, err := store.GetCartByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, n, cart.Items[0].Count)
}
