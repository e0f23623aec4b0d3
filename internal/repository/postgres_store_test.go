package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("SaveRecord and GetRecord", func(t *testing.T) {
		price := decimal.RequireFromString("5")
		rec := &models.WorkflowRecord{
			ID:          1,
			Creator:     "alice@example.com",
			Name:        "rebalancer",
			Category:    "portfolio",
			Description: "weekly rebalance",
			CodeRef:     "code/rebalancer",
			CodeHash:    "deadbeef",
			StrategyRef: "strategy.v1",
			Metadata:    map[string]any{"risk": "low"},
			Price:       &price,
			IsListed:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := store.SaveRecord(ctx, rec)
		assert.NoError(t, err)

		got, err := store.GetRecord(ctx, rec.ID)
		assert.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Creator, got.Creator)
		assert.Equal(t, rec.Name, got.Name)
		assert.Equal(t, rec.CodeHash, got.CodeHash)
		assert.Equal(t, "low", got.Metadata["risk"])
		assert.True(t, got.Price.Equal(price))
		assert.Nil(t, got.ParentID)
	})

	t.Run("UpdateRecord", func(t *testing.T) {
		rec, err := store.GetRecord(ctx, 1)
		assert.NoError(t, err)

		rec.CloneCount = 3
		rec.ClonesLocked = true
		rec.IsListed = false
		rec.Price = nil
		err = store.UpdateRecord(ctx, rec)
		assert.NoError(t, err)

		got, err := store.GetRecord(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, uint64(3), got.CloneCount)
		assert.True(t, got.ClonesLocked)
		assert.False(t, got.IsListed)
		assert.Nil(t, got.Price)
	})

	t.Run("fork parent round trip", func(t *testing.T) {
		parent := models.WorkflowID(1)
		rec := &models.WorkflowRecord{
			ID:          2,
			Creator:     "bob@example.com",
			Name:        "rebalancer fork",
			Category:    "portfolio",
			CodeRef:     "code/fork",
			CodeHash:    "cafebabe",
			StrategyRef: "strategy.v1",
			ParentID:    &parent,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := store.SaveRecord(ctx, rec)
		assert.NoError(t, err)

		got, err := store.GetRecord(ctx, rec.ID)
		assert.NoError(t, err)
		if assert.NotNil(t, got.ParentID) {
			assert.Equal(t, parent, *got.ParentID)
		}

		records, err := store.ListRecords(ctx)
		assert.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("listing lifecycle", func(t *testing.T) {
		l := &ledger.Listing{
			ID:         uuid.New().String(),
			WorkflowID: 1,
			Price:      decimal.RequireFromString("4"),
			Seller:     "alice@example.com",
			CreatedAt:  now,
		}

		err := store.SaveListing(ctx, l)
		assert.NoError(t, err)

		l.Price = decimal.RequireFromString("6")
		err = store.UpdateListingPrice(ctx, l)
		assert.NoError(t, err)

		listings, err := store.ListListings(ctx)
		assert.NoError(t, err)
		if assert.Len(t, listings, 1) {
			assert.Equal(t, l.ID, listings[0].ID)
			assert.True(t, listings[0].Price.Equal(decimal.RequireFromString("6")))
		}

		err = store.DeleteListing(ctx, l.ID)
		assert.NoError(t, err)

		listings, err = store.ListListings(ctx)
		assert.NoError(t, err)
		assert.Empty(t, listings)
	})
}
