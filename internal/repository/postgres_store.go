package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the mirror tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS workflow_records (
	id BIGINT PRIMARY KEY,
	creator TEXT NOT NULL,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	code_ref TEXT NOT NULL,
	code_hash TEXT NOT NULL UNIQUE,
	strategy_ref TEXT NOT NULL,
	metadata JSONB,
	config_defaults JSONB,
	parent_id BIGINT,
	capabilities JSONB,
	price NUMERIC,
	image_ref TEXT,
	is_listed BOOLEAN NOT NULL,
	clone_count BIGINT NOT NULL,
	fork_count BIGINT NOT NULL,
	clones_locked BOOLEAN NOT NULL,
	image_locked BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (creator, name)
);
CREATE TABLE IF NOT EXISTS market_listings (
	id UUID PRIMARY KEY,
	workflow_id BIGINT NOT NULL,
	price NUMERIC NOT NULL,
	seller TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// SaveRecord inserts a freshly registered workflow record.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec *models.WorkflowRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	defaults, err := json.Marshal(rec.ConfigDefaults)
	if err != nil {
		return fmt.Errorf("failed to marshal config defaults: %w", err)
	}
	capabilities, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflow_records
		(id, creator, name, category, description, code_ref, code_hash, strategy_ref,
		 metadata, config_defaults, parent_id, capabilities, price, image_ref,
		 is_listed, clone_count, fork_count, clones_locked, image_locked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		int64(rec.ID), string(rec.Creator), rec.Name, rec.Category, rec.Description,
		rec.CodeRef, rec.CodeHash, rec.StrategyRef,
		metadata, defaults, parentID(rec), capabilities, priceString(rec.Price), rec.ImageRef,
		rec.IsListed, int64(rec.CloneCount), int64(rec.ForkCount),
		rec.ClonesLocked, rec.ImageLocked, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// UpdateRecord rewrites the mutable columns of an existing record.
func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *models.WorkflowRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	defaults, err := json.Marshal(rec.ConfigDefaults)
	if err != nil {
		return fmt.Errorf("failed to marshal config defaults: %w", err)
	}
	_, err = s.db.Exec(ctx, `UPDATE workflow_records SET
		description = $1, metadata = $2, config_defaults = $3, price = $4,
		image_ref = $5, is_listed = $6, clone_count = $7, fork_count = $8,
		clones_locked = $9, image_locked = $10, updated_at = $11
		WHERE id = $12`,
		rec.Description, metadata, defaults, priceString(rec.Price),
		rec.ImageRef, rec.IsListed, int64(rec.CloneCount), int64(rec.ForkCount),
		rec.ClonesLocked, rec.ImageLocked, rec.UpdatedAt, int64(rec.ID))
	return err
}

// GetRecord retrieves a record by id.
func (s *PostgresStore) GetRecord(ctx context.Context, id models.WorkflowID) (*models.WorkflowRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT id, creator, name, category, description,
		code_ref, code_hash, strategy_ref, metadata, config_defaults, parent_id,
		capabilities, price::TEXT, image_ref, is_listed, clone_count, fork_count,
		clones_locked, image_locked, created_at, updated_at
		FROM workflow_records WHERE id = $1`, int64(id))
	return scanRecord(row)
}

// ListRecords returns every record, id-ordered.
func (s *PostgresStore) ListRecords(ctx context.Context) ([]*models.WorkflowRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, creator, name, category, description,
		code_ref, code_hash, strategy_ref, metadata, config_defaults, parent_id,
		capabilities, price::TEXT, image_ref, is_listed, clone_count, fork_count,
		clones_locked, image_locked, created_at, updated_at
		FROM workflow_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.WorkflowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveListing inserts an open marketplace listing.
func (s *PostgresStore) SaveListing(ctx context.Context, l *ledger.Listing) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO market_listings (id, workflow_id, price, seller, created_at) VALUES ($1, $2, $3, $4, $5)",
		l.ID, int64(l.WorkflowID), l.Price.String(), string(l.Seller), l.CreatedAt)
	return err
}

// UpdateListingPrice rewrites a listing's price.
func (s *PostgresStore) UpdateListingPrice(ctx context.Context, l *ledger.Listing) error {
	_, err := s.db.Exec(ctx,
		"UPDATE market_listings SET price = $1 WHERE id = $2", l.Price.String(), l.ID)
	return err
}

// DeleteListing removes a purchased or withdrawn listing.
func (s *PostgresStore) DeleteListing(ctx context.Context, listingID string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM market_listings WHERE id = $1", listingID)
	return err
}

// ListListings returns every open listing.
func (s *PostgresStore) ListListings(ctx context.Context) ([]*ledger.Listing, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, workflow_id, price::TEXT, seller, created_at FROM market_listings ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*ledger.Listing
	for rows.Next() {
		var l ledger.Listing
		var workflowID int64
		var price, seller string
		if err := rows.Scan(&l.ID, &workflowID, &price, &seller, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.WorkflowID = models.WorkflowID(workflowID)
		l.Seller = models.AccountID(seller)
		l.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing price: %w", err)
		}
		listings = append(listings, &l)
	}
	return listings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.WorkflowRecord, error) {
	var rec models.WorkflowRecord
	var id, cloneCount, forkCount int64
	var creator string
	var metadata, defaults, capabilities []byte
	var parent *int64
	var price *string
	err := row.Scan(&id, &creator, &rec.Name, &rec.Category, &rec.Description,
		&rec.CodeRef, &rec.CodeHash, &rec.StrategyRef, &metadata, &defaults, &parent,
		&capabilities, &price, &rec.ImageRef, &rec.IsListed, &cloneCount, &forkCount,
		&rec.ClonesLocked, &rec.ImageLocked, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID = models.WorkflowID(id)
	rec.Creator = models.AccountID(creator)
	rec.CloneCount = uint64(cloneCount)
	rec.ForkCount = uint64(forkCount)
	if parent != nil {
		pid := models.WorkflowID(*parent)
		rec.ParentID = &pid
	}
	if price != nil {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse record price: %w", err)
		}
		rec.Price = &p
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if defaults != nil {
		if err := json.Unmarshal(defaults, &rec.ConfigDefaults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config defaults: %w", err)
		}
	}
	if capabilities != nil {
		if err := json.Unmarshal(capabilities, &rec.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}
	return &rec, nil
}

func parentID(rec *models.WorkflowRecord) *int64 {
	if rec.ParentID == nil {
		return nil
	}
	id := int64(*rec.ParentID)
	return &id
}

func priceString(p *decimal.Decimal) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}
