package hub

import (
	"context"

	"github.com/shopspring/decimal"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

// RegisterWorkflow resolves the code reference, derives its content hash, and
// registers the record under the creator.
func (h *Hub) RegisterWorkflow(ctx context.Context, creator models.AccountID, meta models.WorkflowMeta, codeRef string) (*models.WorkflowRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.container(creator)

	_, codeHash, err := h.code.Resolve(ctx, codeRef, meta.StrategyRef)
	if err != nil {
		return nil, err
	}
	rec, err := h.registry.Register(meta, codeRef, codeHash, creator)
	if err != nil {
		return nil, err
	}

	if h.store != nil {
		h.mirror("save record", h.store.SaveRecord(ctx, rec))
		if rec.ParentID != nil {
			if parent, perr := h.registry.Get(*rec.ParentID); perr == nil {
				h.mirror("update parent record", h.store.UpdateRecord(ctx, parent))
			}
		}
	}
	h.events.Emit(ledger.WorkflowRegistered{WorkflowID: rec.ID, Creator: creator, Name: rec.Name})
	return rec, nil
}

// IssueTicket withdraws the offered amount from the buyer's vault and asks the
// registry for a ticket. The ticket is parked in the pending index until it is
// redeemed by CloneWorkflow or cancelled. A rejected issue refunds the
// withdrawal in full.
func (h *Hub) IssueTicket(ctx context.Context, buyer models.AccountID, workflowID models.WorkflowID, offered *decimal.Decimal) (*ledger.Ticket, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.container(buyer)

	var payment *ledger.Payment
	if offered != nil {
		var err error
		payment, err = h.vault.Withdraw(buyer, *offered)
		if err != nil {
			return nil, err
		}
	}
	ticket, err := h.registry.IssueTicket(workflowID, buyer, payment, h.vault)
	if err != nil {
		return nil, err
	}
	h.pending[ticket.ID] = ticket
	h.events.Emit(ledger.TicketIssued{WorkflowID: workflowID, Buyer: buyer, Price: ticket.Price})
	return ticket, nil
}

// CancelTicket destroys a pending ticket, refunding its escrow to the buyer.
func (h *Hub) CancelTicket(buyer models.AccountID, ticketID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ticket, ok := h.pending[ticketID]
	if !ok || ticket.Buyer != buyer {
		return ledger.ErrKind(ledger.KindNotFound)
	}
	delete(h.pending, ticketID)
	ticket.Destroy(h.vault)
	return nil
}

// SetListing toggles a record's listed flag.
func (h *Hub) SetListing(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID, listed bool) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.SetListing(workflowID, caller, listed)
	})
}

// UpdateMetadata replaces a record's description and metadata blob.
func (h *Hub) UpdateMetadata(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID, description string, metadata map[string]any) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.UpdateMetadata(workflowID, caller, description, metadata)
	})
}

// UpdateConfigDefaults replaces a record's default configuration.
func (h *Hub) UpdateConfigDefaults(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID, defaults map[string]any) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.UpdateConfigDefaults(workflowID, caller, defaults)
	})
}

// SetPrice updates a record's clone price.
func (h *Hub) SetPrice(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID, price *decimal.Decimal) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.SetPrice(workflowID, caller, price)
	})
}

// SetImage updates a record's image reference.
func (h *Hub) SetImage(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID, imageRef *string) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.SetImage(workflowID, caller, imageRef)
	})
}

// LockImage makes a record's image immutable.
func (h *Hub) LockImage(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.LockImage(workflowID, caller)
	})
}

// LockClones forbids all further clones of a record.
func (h *Hub) LockClones(ctx context.Context, caller models.AccountID, workflowID models.WorkflowID) error {
	return h.recordMutation(ctx, workflowID, func() error {
		return h.registry.LockClones(workflowID, caller)
	})
}

// recordMutation wraps a registry setter with the call lock and the mirror
// write.
func (h *Hub) recordMutation(ctx context.Context, workflowID models.WorkflowID, mutate func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := mutate(); err != nil {
		return err
	}
	if h.store != nil {
		if rec, err := h.registry.Get(workflowID); err == nil {
			h.mirror("update record", h.store.UpdateRecord(ctx, rec))
		}
	}
	return nil
}

// GetWorkflow returns a record by id.
func (h *Hub) GetWorkflow(workflowID models.WorkflowID) (*models.WorkflowRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Get(workflowID)
}

// Workflows returns every record.
func (h *Hub) Workflows() []*models.WorkflowRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.All()
}

// WorkflowsByCreator returns the records published by an account.
func (h *Hub) WorkflowsByCreator(creator models.AccountID) []*models.WorkflowRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.ByCreator(creator)
}

// WorkflowsByCategory returns the listed records in a category.
func (h *Hub) WorkflowsByCategory(category string) []*models.WorkflowRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.ByCategory(category)
}

// Forks returns the records forked from a parent.
func (h *Hub) Forks(parentID models.WorkflowID) []*models.WorkflowRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Forks(parentID)
}

// WorkflowsByCodeRef returns the records sharing a code reference.
func (h *Hub) WorkflowsByCodeRef(codeRef string) []*models.WorkflowRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.ByCodeRef(codeRef)
}

// NameExists reports whether a creator already registered a name.
func (h *Hub) NameExists(creator models.AccountID, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.NameExists(creator, name)
}
