package ledger

import (
	"github.com/shopspring/decimal"

	"flowmarket/pkg/models"
)

// Payment is a linear value object: minted only by Vault.Withdraw, consumed
// exactly once by Vault.Deposit. The taken flag forbids double-use; a Payment
// is never aliased between two holders.
type Payment struct {
	amount decimal.Decimal
	taken  bool
}

// Amount reports the value carried by the payment.
func (p *Payment) Amount() decimal.Decimal { return p.amount }

// Spent reports whether the payment has already been deposited.
func (p *Payment) Spent() bool { return p.taken }

// Split consumes the payment and yields two payments whose amounts sum to the
// original, the first carrying cut. Used for fee splitting; conservation holds
// by construction.
func (p *Payment) Split(cut decimal.Decimal) (*Payment, *Payment, error) {
	if p.taken {
		panic("ledger: payment split after spend")
	}
	if cut.IsNegative() || cut.GreaterThan(p.amount) {
		return nil, nil, errf(KindPaymentMismatch, "cannot split %s out of payment of %s", cut, p.amount)
	}
	p.taken = true
	return &Payment{amount: cut}, &Payment{amount: p.amount.Sub(cut)}, nil
}

// Vault holds the fungible balances of every account and is the only mint and
// sink for Payments.
type Vault struct {
	balances map[models.AccountID]decimal.Decimal
}

// NewVault builds an empty vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[models.AccountID]decimal.Decimal)}
}

// Credit adds funds to an account directly (funding/demo path, not part of the
// escrow protocol).
func (v *Vault) Credit(account models.AccountID, amount decimal.Decimal) {
	v.balances[account] = v.balances[account].Add(amount)
}

// Balance reports an account's current balance.
func (v *Vault) Balance(account models.AccountID) decimal.Decimal {
	return v.balances[account]
}

// Withdraw mints a Payment by debiting the account. It fails with
// InsufficientFunds when the balance cannot cover the amount.
func (v *Vault) Withdraw(account models.AccountID, amount decimal.Decimal) (*Payment, error) {
	if amount.IsNegative() {
		return nil, errf(KindInvalidPrice, "cannot withdraw negative amount %s", amount)
	}
	balance := v.balances[account]
	if balance.LessThan(amount) {
		return nil, errf(KindInsufficientFunds, "account %s holds %s, needs %s", account, balance, amount)
	}
	v.balances[account] = balance.Sub(amount)
	return &Payment{amount: amount}, nil
}

// Deposit consumes a Payment into the account's balance. Depositing an already
// spent Payment is a programming error in the escrow protocol and panics
// rather than silently duplicating funds.
func (v *Vault) Deposit(account models.AccountID, p *Payment) {
	if p == nil {
		return
	}
	if p.taken {
		panic("ledger: payment deposited twice")
	}
	p.taken = true
	v.balances[account] = v.balances[account].Add(p.amount)
}
