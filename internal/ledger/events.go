package ledger

import (
	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

// Event is a typed record of something the ledger did. Events are advisory:
// they are emitted after the state change commits and never fail a call.
type Event interface {
	EventName() string
}

// Sink receives ledger events. The hub wires a logging sink by default; tests
// swap in a recorder.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(event Event) { f(event) }

// NopSink drops every event.
var NopSink = SinkFunc(func(Event) {})

type WorkflowRegistered struct {
	WorkflowID models.WorkflowID
	Creator    models.AccountID
	Name       string
}

func (WorkflowRegistered) EventName() string { return "workflow.registered" }

type TicketIssued struct {
	WorkflowID models.WorkflowID
	Buyer      models.AccountID
	Price      decimal.Decimal
}

func (TicketIssued) EventName() string { return "ticket.issued" }

type WorkflowCloned struct {
	WorkflowID models.WorkflowID
	Cloner     models.AccountID
	Price      decimal.Decimal
}

func (WorkflowCloned) EventName() string { return "workflow.cloned" }

type WorkflowExecuted struct {
	WorkflowID models.WorkflowID
	Account    models.AccountID
	Trigger    models.Trigger
}

func (WorkflowExecuted) EventName() string { return "workflow.executed" }

type WorkflowRemoved struct {
	WorkflowID models.WorkflowID
	Account    models.AccountID
}

func (WorkflowRemoved) EventName() string { return "workflow.removed" }

type ListingCreated struct {
	ListingID  string
	WorkflowID models.WorkflowID
	Seller     models.AccountID
	Price      decimal.Decimal
}

func (ListingCreated) EventName() string { return "listing.created" }

type ListingPurchased struct {
	ListingID  string
	WorkflowID models.WorkflowID
	Seller     models.AccountID
	Buyer      models.AccountID
	Price      decimal.Decimal
}

func (ListingPurchased) EventName() string { return "listing.purchased" }

type ListingWithdrawn struct {
	ListingID  string
	WorkflowID models.WorkflowID
	Seller     models.AccountID
}

func (ListingWithdrawn) EventName() string { return "listing.withdrawn" }

// LowBalance is the advisory surfaced when a scheduled run's account cannot
// cover its expected fees. It never hard-fails a call.
type LowBalance struct {
	Account models.AccountID
	Balance decimal.Decimal
}

func (LowBalance) EventName() string { return "account.low_balance" }
