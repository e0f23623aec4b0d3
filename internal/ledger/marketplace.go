package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

// Listing offers one escrowed ownership token for resale. The listing holds
// the token exclusively until it is purchased or withdrawn, at which point the
// listing itself is removed.
type Listing struct {
	ID         string            `json:"id"`
	WorkflowID models.WorkflowID `json:"workflow_id"`
	Price      decimal.Decimal   `json:"price"`
	Seller     models.AccountID  `json:"seller"`
	CreatedAt  time.Time         `json:"created_at"`

	token *OwnershipToken
}

// Marketplace is the resale path: existing tokens change hands here without
// touching the registry's per-clone verification.
type Marketplace struct {
	listings map[string]*Listing
	now      func() time.Time
}

// NewMarketplace builds an empty marketplace.
func NewMarketplace() *Marketplace {
	return &Marketplace{
		listings: make(map[string]*Listing),
		now:      time.Now,
	}
}

// CreateListing moves the token into escrow and registers the listing in the
// global index.
func (m *Marketplace) CreateListing(token *OwnershipToken, price decimal.Decimal, seller models.AccountID) (*Listing, error) {
	if price.IsNegative() {
		return nil, errf(KindInvalidPrice, "listing price must not be negative, got %s", price)
	}
	l := &Listing{
		ID:         uuid.New().String(),
		WorkflowID: token.ID,
		Price:      price,
		Seller:     seller,
		CreatedAt:  m.now(),
		token:      token,
	}
	m.listings[l.ID] = l
	return l, nil
}

// UpdatePrice changes the asking price. Seller only.
func (m *Marketplace) UpdatePrice(listingID string, caller models.AccountID, price decimal.Decimal) error {
	l, err := m.sellerListing(listingID, caller)
	if err != nil {
		return err
	}
	if price.IsNegative() {
		return errf(KindInvalidPrice, "listing price must not be negative, got %s", price)
	}
	l.Price = price
	return nil
}

// Withdraw returns the escrowed token to the seller and removes the listing.
func (m *Marketplace) Withdraw(listingID string, caller models.AccountID) (*OwnershipToken, error) {
	l, err := m.sellerListing(listingID, caller)
	if err != nil {
		return nil, err
	}
	delete(m.listings, listingID)
	token := l.token
	l.token = nil
	return token, nil
}

// Purchase exchanges the escrowed token for a split payment. The token is
// deposited directly into the buyer's container; resale transfers an already
// verified instance, so clone verification is bypassed. The listing is removed
// on success. Every failure path refunds the payment to the buyer first.
func (m *Marketplace) Purchase(
	listingID string,
	payment *Payment,
	buyerContainer *Container,
	buyer models.AccountID,
	vault *Vault,
	fees FeePolicy,
) (*Listing, error) {
	refund := func(kind Kind, format string, args ...any) error {
		vault.Deposit(buyer, payment)
		return errf(kind, format, args...)
	}

	l, ok := m.listings[listingID]
	if !ok {
		return nil, refund(KindNotFound, "listing %s does not exist", listingID)
	}
	if !payment.Amount().Equal(l.Price) {
		return nil, refund(KindPaymentMismatch, "listing %s costs %s, payment is %s", listingID, l.Price, payment.Amount())
	}
	if err := buyerContainer.insert(l.token); err != nil {
		vault.Deposit(buyer, payment)
		return nil, err
	}

	fee, sellerAmount, err := payment.Split(fees.Cut(l.Price))
	if err != nil {
		// Undo the insert; unreachable for a sane fee percent.
		if token, rerr := buyerContainer.Remove(l.token.ID); rerr == nil {
			l.token = token
		}
		vault.Deposit(buyer, payment)
		return nil, err
	}
	vault.Deposit(fees.Collector, fee)
	// For a free listing the seller leg carries zero; depositing it anyway
	// consumes the payment so the escrow audit stays whole.
	vault.Deposit(l.Seller, sellerAmount)

	l.token = nil
	delete(m.listings, listingID)
	return l, nil
}

// Get returns a listing by id.
func (m *Marketplace) Get(listingID string) (*Listing, error) {
	l, ok := m.listings[listingID]
	if !ok {
		return nil, errf(KindNotFound, "listing %s does not exist", listingID)
	}
	return l, nil
}

// All returns every open listing, oldest first.
func (m *Marketplace) All() []*Listing {
	out := make([]*Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// BySeller returns the open listings of one account, oldest first.
func (m *Marketplace) BySeller(seller models.AccountID) []*Listing {
	var out []*Listing
	for _, l := range m.All() {
		if l.Seller == seller {
			out = append(out, l)
		}
	}
	return out
}

func (m *Marketplace) sellerListing(listingID string, caller models.AccountID) (*Listing, error) {
	l, ok := m.listings[listingID]
	if !ok {
		return nil, errf(KindNotFound, "listing %s does not exist", listingID)
	}
	if l.Seller != caller {
		return nil, errf(KindNotSeller, "account %s is not the seller of listing %s", caller, listingID)
	}
	return l, nil
}
