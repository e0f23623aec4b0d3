package hub

import (
	"context"

	"github.com/shopspring/decimal"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

// CreateListing moves an owned token into marketplace escrow. Scheduling is
// detached along the way, exactly as for a plain removal.
func (h *Hub) CreateListing(ctx context.Context, seller models.AccountID, workflowID models.WorkflowID, price decimal.Decimal) (*ledger.Listing, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	token, err := h.removeLocked(seller, workflowID)
	if err != nil {
		return nil, err
	}
	listing, err := h.market.CreateListing(token, price, seller)
	if err != nil {
		// Invalid price: the token goes straight back where it came from.
		h.containers[seller].Restore(token)
		return nil, err
	}

	if h.store != nil {
		h.mirror("save listing", h.store.SaveListing(ctx, listing))
	}
	h.events.Emit(ledger.ListingCreated{ListingID: listing.ID, WorkflowID: workflowID, Seller: seller, Price: price})
	return listing, nil
}

// UpdateListingPrice changes a listing's asking price. Seller only.
func (h *Hub) UpdateListingPrice(ctx context.Context, seller models.AccountID, listingID string, price decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.market.UpdatePrice(listingID, seller, price); err != nil {
		return err
	}
	if h.store != nil {
		if listing, err := h.market.Get(listingID); err == nil {
			h.mirror("update listing", h.store.UpdateListingPrice(ctx, listing))
		}
	}
	return nil
}

// WithdrawListing returns the escrowed token to the seller's container and
// removes the listing.
func (h *Hub) WithdrawListing(ctx context.Context, seller models.AccountID, listingID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	listing, err := h.market.Get(listingID)
	if err != nil {
		return err
	}
	if listing.Seller != seller {
		// Authorization wins over the ownership collision below; a non-seller
		// holding the same record id is still just a non-seller.
		return ledger.ErrKind(ledger.KindNotSeller)
	}
	container := h.container(seller)
	if _, gerr := container.Get(listing.WorkflowID); gerr == nil {
		// The seller re-cloned the workflow while it sat in escrow; the
		// returned token would collide with the fresh one.
		return ledger.ErrKind(ledger.KindAlreadyOwned)
	}

	token, err := h.market.Withdraw(listingID, seller)
	if err != nil {
		return err
	}
	container.Restore(token)

	if h.store != nil {
		h.mirror("delete listing", h.store.DeleteListing(ctx, listingID))
	}
	h.events.Emit(ledger.ListingWithdrawn{ListingID: listingID, WorkflowID: token.ID, Seller: seller})
	return nil
}

// PurchaseListing withdraws the asking amount from the buyer's vault and
// exchanges it for the escrowed token. Any rejection refunds the buyer in
// full.
func (h *Hub) PurchaseListing(ctx context.Context, buyer models.AccountID, listingID string, offered decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	container := h.container(buyer)
	payment, err := h.vault.Withdraw(buyer, offered)
	if err != nil {
		return err
	}
	listing, err := h.market.Purchase(listingID, payment, container, buyer, h.vault, h.fees)
	if err != nil {
		return err
	}

	if h.store != nil {
		h.mirror("delete listing", h.store.DeleteListing(ctx, listingID))
	}
	h.events.Emit(ledger.ListingPurchased{
		ListingID:  listing.ID,
		WorkflowID: listing.WorkflowID,
		Seller:     listing.Seller,
		Buyer:      buyer,
		Price:      listing.Price,
	})
	h.purchases.Add(ctx, 1)
	return nil
}

// Listing returns one open listing.
func (h *Hub) Listing(listingID string) (*ledger.Listing, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.market.Get(listingID)
}

// Listings returns every open listing.
func (h *Hub) Listings() []*ledger.Listing {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.market.All()
}

// ListingsBySeller returns one account's open listings.
func (h *Hub) ListingsBySeller(seller models.AccountID) []*ledger.Listing {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.market.BySeller(seller)
}
