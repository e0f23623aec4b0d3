// Package repository persists the registry and marketplace tables. The
// in-memory ledger stays authoritative; the store is the durable mirror of
// the append/update-in-place tables (record removal from a container never
// deletes its registry row).
package repository

import (
	"context"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

// Store mirrors registry records and marketplace listings.
type Store interface {
	// SaveRecord inserts a freshly registered workflow record.
	SaveRecord(ctx context.Context, rec *models.WorkflowRecord) error
	// UpdateRecord rewrites the mutable columns of an existing record.
	UpdateRecord(ctx context.Context, rec *models.WorkflowRecord) error
	// GetRecord retrieves a record by id.
	GetRecord(ctx context.Context, id models.WorkflowID) (*models.WorkflowRecord, error)
	// ListRecords returns every record, id-ordered.
	ListRecords(ctx context.Context) ([]*models.WorkflowRecord, error)
	// SaveListing inserts an open marketplace listing.
	SaveListing(ctx context.Context, l *ledger.Listing) error
	// UpdateListingPrice rewrites a listing's price.
	UpdateListingPrice(ctx context.Context, l *ledger.Listing) error
	// DeleteListing removes a purchased or withdrawn listing.
	DeleteListing(ctx context.Context, listingID string) error
	// ListListings returns every open listing.
	ListListings(ctx context.Context) ([]*ledger.Listing, error)
}
