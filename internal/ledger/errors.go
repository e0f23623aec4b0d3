// Package ledger implements the registry-and-ownership core: the workflow
// record registry, per-account containers, the ticket escrow protocol, and the
// resale marketplace. All state in this package is mutated only through the
// owning service in internal/hub, which serializes calls.
package ledger

import (
	"errors"
	"fmt"
)

// Kind labels the class of a rejected operation.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindDuplicateCode     Kind = "duplicate_code"
	KindDuplicateName     Kind = "duplicate_name"
	KindParentNotFound    Kind = "parent_not_found"
	KindUnlisted          Kind = "unlisted"
	KindLocked            Kind = "locked"
	KindCodeTampered      Kind = "code_tampered"
	KindTicketMismatch    Kind = "ticket_mismatch"
	KindPriceChanged      Kind = "price_changed"
	KindPaymentMismatch   Kind = "payment_mismatch"
	KindUnexpectedPayment Kind = "unexpected_payment"
	KindAlreadyOwned      Kind = "already_owned"
	KindHasClones         Kind = "has_clones"
	KindAlreadyLocked     Kind = "already_locked"
	KindNotSeller         Kind = "not_seller"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInvalidPrice      Kind = "invalid_price"
)

// Error is a kind-labeled rejection of an entire call. Every public operation
// either fully succeeds or fails with one of these; there is no
// partial-success mode.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches two ledger errors by kind, so callers can use
// errors.Is(err, ledger.ErrKind(KindNotFound)).
func (e *Error) Is(target error) bool {
	var le *Error
	if !errors.As(target, &le) {
		return false
	}
	return e.Kind == le.Kind
}

// errf builds a kind-labeled error.
func errf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrKind returns a sentinel matching any error of the given kind.
func ErrKind(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the kind of a ledger error, or "" for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
