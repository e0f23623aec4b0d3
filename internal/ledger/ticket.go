package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

// Ticket is the ephemeral proof-of-payment issued by the registry and consumed
// exactly once by a container's Accept, or destroyed with a refund. A ticket
// must never be dropped while still holding an unrefunded escrow.
type Ticket struct {
	ID         string
	WorkflowID models.WorkflowID
	Buyer      models.AccountID
	Creator    models.AccountID
	Price      decimal.Decimal // snapshotted at issuance
	IssuedAt   time.Time

	escrow   *Payment
	consumed bool
}

// Escrowed reports whether the ticket still holds an undrained payment.
func (t *Ticket) Escrowed() bool {
	return t.escrow != nil
}

// takeEscrow moves the escrowed payment out of the ticket. The ticket never
// hands out an aliased reference; after this call it holds nothing.
func (t *Ticket) takeEscrow() *Payment {
	p := t.escrow
	t.escrow = nil
	return p
}

// Refund drains any escrowed payment back to the buyer. Safe to call on an
// already drained ticket. Every failure path that holds a ticket funnels
// through here before raising its error.
func (t *Ticket) Refund(vault *Vault) {
	if p := t.takeEscrow(); p != nil {
		vault.Deposit(t.Buyer, p)
	}
}

// Destroy refunds any escrow and marks the ticket consumed.
func (t *Ticket) Destroy(vault *Vault) {
	t.Refund(vault)
	t.consumed = true
}

// refundAndFail drains the ticket's escrow to the buyer and returns the given
// kind-labeled error. Keeping the refund and the failure on one line makes the
// escrow-conservation rule hard to violate at new failure sites.
func (t *Ticket) refundAndFail(vault *Vault, kind Kind, format string, args ...any) error {
	t.Refund(vault)
	return errf(kind, format, args...)
}
