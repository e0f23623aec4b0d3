package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

// OwnershipToken wraps exactly one strategy instance. Its id equals the record
// id it was cloned from; the creator is copied from the record at clone time.
// At any moment exactly one container (or marketplace listing) holds a token;
// transfer is a move, never a copy.
type OwnershipToken struct {
	ID       models.WorkflowID
	Creator  models.AccountID
	Strategy models.Strategy
}

// FeePolicy is the platform's cut of every paid clone and resale.
type FeePolicy struct {
	Percent   decimal.Decimal
	Collector models.AccountID
}

// Cut computes the platform fee for a price.
func (f FeePolicy) Cut(price decimal.Decimal) decimal.Decimal {
	return price.Mul(f.Percent)
}

// Container holds the workflow instances owned by one account, keyed by
// record id. A record id appears at most once per container.
type Container struct {
	account models.AccountID
	tokens  map[models.WorkflowID]*OwnershipToken
}

// NewContainer builds an empty container for the account.
func NewContainer(account models.AccountID) *Container {
	return &Container{
		account: account,
		tokens:  make(map[models.WorkflowID]*OwnershipToken),
	}
}

// Account returns the owning account id.
func (c *Container) Account() models.AccountID { return c.account }

// Accept is the single entry point for both first-deposit-from-factory and
// explicit clone. It verifies the record, reconciles the ticket and price,
// settles the escrowed payment, inserts the token, and records the clone.
// Every failure branch refunds the ticket's escrow before raising its error;
// funds are never destroyed silently.
func (c *Container) Accept(
	ctx context.Context,
	reg *Registry,
	vault *Vault,
	fees FeePolicy,
	workflowID models.WorkflowID,
	token *OwnershipToken,
	ticket *Ticket,
) error {
	fail := func(kind Kind, format string, args ...any) error {
		if ticket != nil {
			return ticket.refundAndFail(vault, kind, format, args...)
		}
		return errf(kind, format, args...)
	}

	if _, owned := c.tokens[workflowID]; owned {
		return fail(KindAlreadyOwned, "account %s already owns workflow %d", c.account, workflowID)
	}
	if token == nil || token.ID != workflowID {
		return fail(KindTicketMismatch, "token does not wrap workflow %d", workflowID)
	}

	rec, err := reg.Get(workflowID)
	if err != nil {
		if ticket != nil {
			ticket.Refund(vault)
		}
		return err
	}
	if rec.ClonesLocked {
		return fail(KindLocked, "workflow %d is locked against cloning", workflowID)
	}
	if !rec.IsListed && c.account != rec.Creator {
		return fail(KindUnlisted, "workflow %d is not listed", workflowID)
	}

	if err := reg.VerifyCodeHash(ctx, rec); err != nil {
		if ticket != nil {
			ticket.Refund(vault)
		}
		return err
	}

	// Ticket reconciliation. Without a ticket only the creator may proceed:
	// self-clone is free and ticket-less.
	if ticket == nil {
		if c.account != rec.Creator {
			return errf(KindTicketMismatch, "account %s needs a ticket to clone workflow %d", c.account, workflowID)
		}
	} else {
		if ticket.consumed {
			return fail(KindTicketMismatch, "ticket for workflow %d was already consumed", workflowID)
		}
		if ticket.WorkflowID != workflowID || ticket.Buyer != c.account || ticket.Creator != rec.Creator {
			return fail(KindTicketMismatch, "ticket does not match workflow %d for account %s", workflowID, c.account)
		}

		// Price reconciliation against the snapshot taken at issuance.
		price := rec.EffectivePrice()
		if !ticket.Price.Equal(price) {
			return fail(KindPriceChanged, "workflow %d price changed from %s to %s since the ticket was issued", workflowID, ticket.Price, price)
		}

		switch {
		case price.IsPositive() && c.account != rec.Creator:
			payment := ticket.takeEscrow()
			if payment == nil {
				return fail(KindPaymentMismatch, "ticket for workflow %d holds no payment for price %s", workflowID, price)
			}
			if !payment.Amount().Equal(price) {
				vault.Deposit(ticket.Buyer, payment)
				return errf(KindPaymentMismatch, "escrow of %s does not cover price %s", payment.Amount(), price)
			}
			fee, rest, err := payment.Split(fees.Cut(price))
			if err != nil {
				// Unreachable for a sane fee percent, but the escrow must still
				// find its way home.
				vault.Deposit(ticket.Buyer, payment)
				return errf(KindPaymentMismatch, "cannot settle workflow %d: %v", workflowID, err)
			}
			vault.Deposit(fees.Collector, fee)
			vault.Deposit(rec.Creator, rest)
		case price.IsPositive():
			// Creator presented a ticket for their own workflow; self-clone is
			// always free, so any escrow goes straight back.
			ticket.Refund(vault)
		default:
			if ticket.Escrowed() {
				return fail(KindUnexpectedPayment, "workflow %d is free, ticket must not carry a payment", workflowID)
			}
		}
	}

	c.tokens[workflowID] = token
	if err := reg.RecordClone(workflowID, c.account); err != nil {
		// The record was loaded above; only an unreachable NotFound can land
		// here. Undo the insert so a failed call leaves no state behind.
		delete(c.tokens, workflowID)
		return err
	}
	if ticket != nil {
		ticket.Destroy(vault)
	}
	return nil
}

// Remove moves a token out of the container. Scheduler detachment is the
// hub's concern and happens before this is called.
func (c *Container) Remove(workflowID models.WorkflowID) (*OwnershipToken, error) {
	token, ok := c.tokens[workflowID]
	if !ok {
		return nil, errf(KindNotFound, "account %s does not own workflow %d", c.account, workflowID)
	}
	delete(c.tokens, workflowID)
	return token, nil
}

// Run invokes the wrapped strategy. A failing run is not caught; it
// propagates and aborts the whole call.
func (c *Container) Run(ctx context.Context, workflowID models.WorkflowID, trigger models.Trigger) error {
	token, ok := c.tokens[workflowID]
	if !ok {
		return errf(KindNotFound, "account %s does not own workflow %d", c.account, workflowID)
	}
	return token.Strategy.Run(ctx)
}

// Get returns the token for a record id without moving it.
func (c *Container) Get(workflowID models.WorkflowID) (*OwnershipToken, error) {
	token, ok := c.tokens[workflowID]
	if !ok {
		return nil, errf(KindNotFound, "account %s does not own workflow %d", c.account, workflowID)
	}
	return token, nil
}

// ListIDs returns the owned record ids in ascending order.
func (c *Container) ListIDs() []models.WorkflowID {
	ids := make([]models.WorkflowID, 0, len(c.tokens))
	for id := range c.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of owned tokens.
func (c *Container) Count() int { return len(c.tokens) }

// Restore re-inserts a token that was moved out of this container and is on
// its way back (failed listing creation, listing withdrawal). The caller has
// already established the slot is free; a collision means the one-owner
// invariant broke somewhere else.
func (c *Container) Restore(token *OwnershipToken) {
	if _, owned := c.tokens[token.ID]; owned {
		panic("ledger: token restored into an occupied slot")
	}
	c.tokens[token.ID] = token
}

// insert places a token directly, bypassing clone verification. Only the
// marketplace purchase path uses it: resale transfers an already verified
// instance.
func (c *Container) insert(token *OwnershipToken) error {
	if _, owned := c.tokens[token.ID]; owned {
		return errf(KindAlreadyOwned, "account %s already owns workflow %d", c.account, token.ID)
	}
	c.tokens[token.ID] = token
	return nil
}
