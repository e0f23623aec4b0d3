package hub

import (
	"context"

	"flowmarket/internal/ledger"
	"flowmarket/pkg/models"
)

// CloneWorkflow materializes a new ownership token in the account's container.
// A ticket id of "" is the ticket-less self-clone path, open only to the
// record's creator. Tickets are single-attempt: whether Accept succeeds or
// fails, the ticket leaves the pending index (a failing Accept has already
// refunded its escrow).
func (h *Hub) CloneWorkflow(ctx context.Context, account models.AccountID, workflowID models.WorkflowID, ticketID string) (*ledger.OwnershipToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	container := h.container(account)

	var ticket *ledger.Ticket
	if ticketID != "" {
		var ok bool
		ticket, ok = h.pending[ticketID]
		if !ok || ticket.Buyer != account {
			return nil, ledger.ErrKind(ledger.KindTicketMismatch)
		}
		delete(h.pending, ticketID)
	}

	rec, err := h.registry.Get(workflowID)
	if err != nil {
		if ticket != nil {
			ticket.Refund(h.vault)
		}
		return nil, err
	}

	strategy, err := h.factory.New(rec)
	if err != nil {
		if ticket != nil {
			ticket.Refund(h.vault)
		}
		return nil, err
	}
	token := &ledger.OwnershipToken{ID: rec.ID, Creator: rec.Creator, Strategy: strategy}

	if err := container.Accept(ctx, h.registry, h.vault, h.fees, workflowID, token, ticket); err != nil {
		return nil, err
	}

	if h.store != nil {
		if rec, gerr := h.registry.Get(workflowID); gerr == nil {
			h.mirror("update record", h.store.UpdateRecord(ctx, rec))
		}
	}
	h.events.Emit(ledger.WorkflowCloned{WorkflowID: workflowID, Cloner: account, Price: rec.EffectivePrice()})
	h.clones.Add(ctx, 1)
	return token, nil
}

// RunWorkflow invokes an owned workflow instance. A failing run propagates and
// no execution event is emitted for it.
func (h *Hub) RunWorkflow(ctx context.Context, account models.AccountID, workflowID models.WorkflowID, trigger models.Trigger) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	container, ok := h.containers[account]
	if !ok {
		return ledger.ErrKind(ledger.KindNotFound)
	}
	if err := container.Run(ctx, workflowID, trigger); err != nil {
		return err
	}
	h.events.Emit(ledger.WorkflowExecuted{WorkflowID: workflowID, Account: account, Trigger: trigger})

	if trigger == models.TriggerScheduled && h.floor.IsPositive() {
		if balance := h.vault.Balance(account); balance.LessThan(h.floor) {
			h.events.Emit(ledger.LowBalance{Account: account, Balance: balance})
		}
	}
	return nil
}

// RemoveWorkflow moves the token out of the account's container and detaches
// any recurring-run registration it had.
func (h *Hub) RemoveWorkflow(account models.AccountID, workflowID models.WorkflowID) (*ledger.OwnershipToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(account, workflowID)
}

// removeLocked is the shared move-then-detach path. Callers hold the mutex.
// The detach hook fires only once the token has actually left the container;
// a rejected removal must not touch another account's schedule.
func (h *Hub) removeLocked(account models.AccountID, workflowID models.WorkflowID) (*ledger.OwnershipToken, error) {
	container, ok := h.containers[account]
	if !ok {
		return nil, ledger.ErrKind(ledger.KindNotFound)
	}
	token, err := container.Remove(workflowID)
	if err != nil {
		return nil, err
	}
	if h.detach != nil {
		h.detach(account, workflowID)
	}
	h.events.Emit(ledger.WorkflowRemoved{WorkflowID: workflowID, Account: account})
	return token, nil
}

// OwnedWorkflows returns the record ids owned by an account.
func (h *Hub) OwnedWorkflows(account models.AccountID) []models.WorkflowID {
	h.mu.Lock()
	defer h.mu.Unlock()

	container, ok := h.containers[account]
	if !ok {
		return nil
	}
	return container.ListIDs()
}

// OwnedToken returns one owned token without moving it.
func (h *Hub) OwnedToken(account models.AccountID, workflowID models.WorkflowID) (*ledger.OwnershipToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	container, ok := h.containers[account]
	if !ok {
		return nil, ledger.ErrKind(ledger.KindNotFound)
	}
	return container.Get(workflowID)
}

// OwnedCount returns the number of tokens an account holds.
func (h *Hub) OwnedCount(account models.AccountID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	container, ok := h.containers[account]
	if !ok {
		return 0
	}
	return container.Count()
}
