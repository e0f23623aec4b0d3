package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"flowmarket/internal/codestore"
	"flowmarket/internal/config"
	"flowmarket/internal/logging"
	"flowmarket/internal/repository"
	"flowmarket/pkg/models"
)

// Seeds the persistence mirror with a handful of demo workflow records so a
// fresh deployment has something to browse.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repository.Schema); err != nil {
		log.Fatalf("Failed to create mirror tables: %v", err)
	}
	store := repository.NewPostgresStore(pool)

	// Check for existing records to prevent duplicates
	existing, err := store.ListRecords(ctx)
	if err != nil {
		log.Fatalf("Failed to list existing records: %v", err)
	}

	existingMap := make(map[string]bool)
	nextID := models.WorkflowID(1)
	for _, rec := range existing {
		existingMap[rec.Name] = true
		if rec.ID >= nextID {
			nextID = rec.ID + 1
		}
	}

	// Seed workflow records
	creator := models.AccountID("demo@flowmarket")
	price := decimal.NewFromFloat(5.0)
	workflows := []struct {
		Name        string
		Category    string
		Description string
		Price       *decimal.Decimal
	}{
		{"Rebalancer", "portfolio", "Rebalances holdings to a target allocation on each run.", &price},
		{"Dip Buyer", "momentum", "Buys on configurable drawdown thresholds.", &price},
		{"Daily Digest", "reporting", "Compiles a daily activity summary.", nil},
	}

	for _, w := range workflows {
		if existingMap[w.Name] {
			logger.Info("Skipping existing workflow", "name", w.Name)
			continue
		}

		now := time.Now()
		code := []byte("strategy:" + w.Name)
		rec := &models.WorkflowRecord{
			ID:          nextID,
			Creator:     creator,
			Name:        w.Name,
			Category:    w.Category,
			Description: w.Description,
			CodeRef:     fmt.Sprintf("seed/%s.wasm", w.Name),
			CodeHash:    codestore.HashBytes(code),
			StrategyRef: "strategy.v1",
			Price:       w.Price,
			IsListed:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := store.SaveRecord(ctx, rec); err != nil {
			log.Printf("Failed to seed workflow %s: %v", w.Name, err)
		} else {
			logger.Info("Seeded workflow", "name", w.Name, "id", rec.ID)
			nextID++
		}
	}
	logger.Info("Seeding complete!")
}
