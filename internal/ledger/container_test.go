package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmarket/pkg/models"
)

var testFees = FeePolicy{Percent: dec("0.05"), Collector: "treasury@flowmarket"}

func testToken(rec *models.WorkflowRecord) *OwnershipToken {
	return &OwnershipToken{
		ID:       rec.ID,
		Creator:  rec.Creator,
		Strategy: models.NewNoopStrategy(rec.ID, rec.Name, rec.Category, nil),
	}
}

func TestAccept_SelfCloneCountsTowardCloneCount(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	price := dec("5")
	rec := register(t, reg, code, "mine", &price, true)

	// The creator clones their own workflow without a ticket and pays nothing.
	c := NewContainer(creator)
	err := c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), rec.CloneCount)
	assert.Equal(t, 1, c.Count())
	assert.True(t, vault.Balance(creator).IsZero())
}

func TestAccept_PaidClone(t *testing.T) {
	// Scenario: price 5.0 with a 5% platform fee. The creator ends with 4.75,
	// the collector with 0.25, and the buyer owns the instance.
	reg, code := newTestRegistry()
	vault := NewVault()
	vault.Credit(buyer, dec("5"))
	price := dec("5")
	rec := register(t, reg, code, "priced", &price, true)

	payment, err := vault.Withdraw(buyer, dec("5"))
	require.NoError(t, err)
	ticket, err := reg.IssueTicket(rec.ID, buyer, payment, vault)
	require.NoError(t, err)

	c := NewContainer(buyer)
	require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket))

	assert.Equal(t, uint64(1), rec.CloneCount)
	assert.True(t, vault.Balance(creator).Equal(dec("4.75")), "creator got %s", vault.Balance(creator))
	assert.True(t, vault.Balance(testFees.Collector).Equal(dec("0.25")), "collector got %s", vault.Balance(testFees.Collector))
	assert.True(t, vault.Balance(buyer).IsZero())

	token, err := c.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, token.ID)
}

func TestAccept_SecondCloneRejected(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	rec := register(t, reg, code, "free", nil, true)

	c := NewContainer(buyer)
	ticket, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
	require.NoError(t, err)
	require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket))

	ticket2, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
	require.NoError(t, err)
	err = c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket2)
	assert.Equal(t, KindAlreadyOwned, KindOf(err))
	assert.Equal(t, uint64(1), rec.CloneCount, "failed clone must not bump the counter")
	assert.Equal(t, 1, c.Count())
}

func TestAccept_LockedAfterLockClones(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	rec := register(t, reg, code, "free", nil, true)
	require.NoError(t, reg.LockClones(rec.ID, creator))

	c := NewContainer(buyer)
	ticket, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
	require.NoError(t, err)
	err = c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket)
	assert.Equal(t, KindLocked, KindOf(err))
	assert.Equal(t, 0, c.Count())

	// The lock is permanent, even for the creator.
	self := NewContainer(creator)
	err = self.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), nil)
	assert.Equal(t, KindLocked, KindOf(err))
}

func TestAccept_NonCreatorWithoutTicket(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	rec := register(t, reg, code, "free", nil, true)

	c := NewContainer(buyer)
	err := c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), nil)
	assert.Equal(t, KindTicketMismatch, KindOf(err))
	assert.Equal(t, uint64(0), rec.CloneCount)
}

func TestAccept_TicketReconciliation(t *testing.T) {
	t.Run("ticket for another workflow refunds and fails", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("5"))
		price := dec("5")
		paid := register(t, reg, code, "paid", &price, true)
		other := register(t, reg, code, "other", nil, true)

		payment, err := vault.Withdraw(buyer, dec("5"))
		require.NoError(t, err)
		ticket, err := reg.IssueTicket(paid.ID, buyer, payment, vault)
		require.NoError(t, err)

		c := NewContainer(buyer)
		err = c.Accept(context.Background(), reg, vault, testFees, other.ID, testToken(other), ticket)
		assert.Equal(t, KindTicketMismatch, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("5")), "escrow must be refunded")
	})

	t.Run("consumed ticket cannot be replayed", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		rec := register(t, reg, code, "free", nil, true)

		ticket, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
		require.NoError(t, err)
		c := NewContainer(buyer)
		require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket))
		c.tokens = make(map[models.WorkflowID]*OwnershipToken)

		err = c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket)
		assert.Equal(t, KindTicketMismatch, KindOf(err))
	})

	t.Run("price change since issuance refunds and fails", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("5"))
		price := dec("5")
		rec := register(t, reg, code, "paid", &price, true)

		payment, err := vault.Withdraw(buyer, dec("5"))
		require.NoError(t, err)
		ticket, err := reg.IssueTicket(rec.ID, buyer, payment, vault)
		require.NoError(t, err)

		raised := dec("7")
		require.NoError(t, reg.SetPrice(rec.ID, creator, &raised))

		c := NewContainer(buyer)
		err = c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket)
		assert.Equal(t, KindPriceChanged, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("5")))
		assert.Equal(t, uint64(0), rec.CloneCount)
	})

	t.Run("tampered code refunds and fails", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("5"))
		price := dec("5")
		rec := register(t, reg, code, "paid", &price, true)

		payment, err := vault.Withdraw(buyer, dec("5"))
		require.NoError(t, err)
		ticket, err := reg.IssueTicket(rec.ID, buyer, payment, vault)
		require.NoError(t, err)

		code.Replace(rec.CodeRef, []byte("not what was registered"))

		c := NewContainer(buyer)
		err = c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket)
		assert.Equal(t, KindCodeTampered, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("5")))
	})
}

func TestAccept_CreatorTicketEscrowRefunded(t *testing.T) {
	// The creator somehow acquired a paid ticket for their own workflow. The
	// clone goes through as a free self-clone and the escrow is returned.
	reg, code := newTestRegistry()
	vault := NewVault()
	vault.Credit(creator, dec("5"))
	price := dec("5")
	rec := register(t, reg, code, "mine", &price, true)

	payment, err := vault.Withdraw(creator, dec("5"))
	require.NoError(t, err)
	ticket, err := reg.IssueTicket(rec.ID, creator, payment, vault)
	require.NoError(t, err)

	c := NewContainer(creator)
	require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), ticket))
	assert.True(t, vault.Balance(creator).Equal(dec("5")))
	assert.Equal(t, uint64(1), rec.CloneCount)
}

func TestContainer_RemoveAndRestore(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	rec := register(t, reg, code, "free", nil, true)

	c := NewContainer(creator)
	require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), nil))

	token, err := c.Remove(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count())

	_, err = c.Remove(rec.ID)
	assert.Equal(t, KindNotFound, KindOf(err))

	c.Restore(token)
	assert.Equal(t, 1, c.Count())
	assert.Panics(t, func() { c.Restore(token) })
}

func TestContainer_Run(t *testing.T) {
	reg, code := newTestRegistry()
	vault := NewVault()
	rec := register(t, reg, code, "free", nil, true)

	c := NewContainer(creator)
	require.NoError(t, c.Accept(context.Background(), reg, vault, testFees, rec.ID, testToken(rec), nil))
	assert.NoError(t, c.Run(context.Background(), rec.ID, models.TriggerManual))

	token, err := c.Get(rec.ID)
	require.NoError(t, err)
	require.NoError(t, token.Strategy.Pause())
	err = c.Run(context.Background(), rec.ID, models.TriggerManual)
	assert.True(t, errors.Is(err, models.ErrStrategyPaused))

	require.NoError(t, token.Strategy.Resume())
	assert.NoError(t, c.Run(context.Background(), rec.ID, models.TriggerManual))

	err = c.Run(context.Background(), models.WorkflowID(99), models.TriggerManual)
	assert.Equal(t, KindNotFound, KindOf(err))
}
