package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmarket/internal/codestore"
	"flowmarket/pkg/models"
)

const (
	creator = models.AccountID("alice@example.com")
	buyer   = models.AccountID("bob@example.com")
)

func newTestRegistry() (*Registry, *codestore.MemoryStore) {
	code := codestore.NewMemoryStore()
	return NewRegistry(code), code
}

func register(t *testing.T, reg *Registry, code *codestore.MemoryStore, name string, price *decimal.Decimal, listed bool) *models.WorkflowRecord {
	t.Helper()
	hash := code.Put("code/"+name, []byte("strategy body of "+name))
	rec, err := reg.Register(models.WorkflowMeta{
		Name:        name,
		Category:    "automation",
		StrategyRef: "strategy.v1",
		Price:       price,
		IsListed:    listed,
	}, "code/"+name, hash, creator)
	require.NoError(t, err)
	return rec
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRegister(t *testing.T) {
	t.Run("allocates strictly increasing ids", func(t *testing.T) {
		reg, code := newTestRegistry()
		a := register(t, reg, code, "one", nil, true)
		b := register(t, reg, code, "two", nil, true)
		c := register(t, reg, code, "three", nil, true)
		assert.Less(t, a.ID, b.ID)
		assert.Less(t, b.ID, c.ID)
		assert.Equal(t, uint64(0), a.CloneCount)
		assert.Equal(t, uint64(0), a.ForkCount)
		assert.False(t, a.ClonesLocked)
	})

	t.Run("rejects duplicate code hash", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)
		_, err := reg.Register(models.WorkflowMeta{Name: "other"}, "code/other", rec.CodeHash, creator)
		assert.Equal(t, KindDuplicateCode, KindOf(err))
	})

	t.Run("rejects duplicate name per creator", func(t *testing.T) {
		reg, code := newTestRegistry()
		register(t, reg, code, "one", nil, true)
		hash := code.Put("code/one-again", []byte("different body"))
		_, err := reg.Register(models.WorkflowMeta{Name: "one"}, "code/one-again", hash, creator)
		assert.Equal(t, KindDuplicateName, KindOf(err))

		// A different creator may reuse the name.
		hash2 := code.Put("code/one-third", []byte("third body"))
		_, err = reg.Register(models.WorkflowMeta{Name: "one"}, "code/one-third", hash2, buyer)
		assert.NoError(t, err)
	})

	t.Run("rejects missing fork parent", func(t *testing.T) {
		reg, code := newTestRegistry()
		missing := models.WorkflowID(99)
		hash := code.Put("code/fork", []byte("fork body"))
		_, err := reg.Register(models.WorkflowMeta{Name: "fork", ParentID: &missing}, "code/fork", hash, creator)
		assert.Equal(t, KindParentNotFound, KindOf(err))
	})

	t.Run("fork increments parent fork count by one", func(t *testing.T) {
		reg, code := newTestRegistry()
		parent := register(t, reg, code, "parent", nil, true)
		hash := code.Put("code/fork", []byte("fork body"))
		fork, err := reg.Register(models.WorkflowMeta{Name: "fork", ParentID: &parent.ID}, "code/fork", hash, creator)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), parent.ForkCount)

		forks := reg.Forks(parent.ID)
		require.Len(t, forks, 1)
		assert.Equal(t, fork.ID, forks[0].ID)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		reg, code := newTestRegistry()
		neg := dec("-1")
		hash := code.Put("code/neg", []byte("neg body"))
		_, err := reg.Register(models.WorkflowMeta{Name: "neg", Price: &neg}, "code/neg", hash, creator)
		assert.Equal(t, KindInvalidPrice, KindOf(err))
	})
}

func TestIssueTicket(t *testing.T) {
	t.Run("free workflow issues without payment", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		rec := register(t, reg, code, "free", nil, true)

		ticket, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
		require.NoError(t, err)
		assert.NotEmpty(t, ticket.ID)
		assert.True(t, ticket.Price.IsZero())
		assert.False(t, ticket.Escrowed())
	})

	t.Run("underpayment is rejected and refunded", func(t *testing.T) {
		// Scenario: workflow priced at 5.0, buyer offers 3.0.
		reg, code := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("3"))
		price := dec("5")
		rec := register(t, reg, code, "priced", &price, true)

		payment, err := vault.Withdraw(buyer, dec("3"))
		require.NoError(t, err)
		_, err = reg.IssueTicket(rec.ID, buyer, payment, vault)
		assert.Equal(t, KindPaymentMismatch, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("3")), "refund must restore the buyer balance")
	})

	t.Run("payment on a free workflow is rejected and refunded", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("2"))
		rec := register(t, reg, code, "free", nil, true)

		payment, err := vault.Withdraw(buyer, dec("2"))
		require.NoError(t, err)
		_, err = reg.IssueTicket(rec.ID, buyer, payment, vault)
		assert.Equal(t, KindUnexpectedPayment, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("2")))
	})

	t.Run("priced workflow requires a payment", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		price := dec("5")
		rec := register(t, reg, code, "priced", &price, true)

		_, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
		assert.Equal(t, KindPaymentMismatch, KindOf(err))
	})

	t.Run("unlisted workflow only issues to its creator", func(t *testing.T) {
		reg, code := newTestRegistry()
		vault := NewVault()
		rec := register(t, reg, code, "hidden", nil, false)

		_, err := reg.IssueTicket(rec.ID, buyer, nil, vault)
		assert.Equal(t, KindUnlisted, KindOf(err))

		_, err = reg.IssueTicket(rec.ID, creator, nil, vault)
		assert.NoError(t, err)
	})

	t.Run("unknown workflow refunds before failing", func(t *testing.T) {
		reg, _ := newTestRegistry()
		vault := NewVault()
		vault.Credit(buyer, dec("5"))
		payment, err := vault.Withdraw(buyer, dec("5"))
		require.NoError(t, err)

		_, err = reg.IssueTicket(models.WorkflowID(42), buyer, payment, vault)
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.True(t, vault.Balance(buyer).Equal(dec("5")))
	})
}

func TestRegistrySetters(t *testing.T) {
	t.Run("setters require the creator", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)

		assert.Equal(t, KindNotSeller, KindOf(reg.SetListing(rec.ID, buyer, false)))
		assert.Equal(t, KindNotSeller, KindOf(reg.LockClones(rec.ID, buyer)))
		assert.Equal(t, KindNotSeller, KindOf(reg.LockImage(rec.ID, buyer)))
		assert.Equal(t, KindNotSeller, KindOf(reg.SetPrice(rec.ID, buyer, nil)))
		assert.Equal(t, KindNotSeller, KindOf(reg.UpdateMetadata(rec.ID, buyer, "x", nil)))
		assert.Equal(t, KindNotSeller, KindOf(reg.UpdateConfigDefaults(rec.ID, buyer, nil)))
		assert.False(t, rec.ClonesLocked, "record must be unchanged after rejected calls")
	})

	t.Run("creator updates metadata and config defaults", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)

		require.NoError(t, reg.UpdateMetadata(rec.ID, creator, "momentum follower", map[string]any{"risk": "low"}))
		assert.Equal(t, "momentum follower", rec.Description)
		assert.Equal(t, "low", rec.Metadata["risk"])

		require.NoError(t, reg.UpdateConfigDefaults(rec.ID, creator, map[string]any{"window": 14}))
		assert.Equal(t, 14, rec.ConfigDefaults["window"])
	})

	t.Run("listing a cloned record is rejected", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)
		require.NoError(t, reg.SetListing(rec.ID, creator, false))
		require.NoError(t, reg.RecordClone(rec.ID, buyer))

		err := reg.SetListing(rec.ID, creator, true)
		assert.Equal(t, KindHasClones, KindOf(err))
		assert.False(t, rec.IsListed)
	})

	t.Run("unlisting is always allowed", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)
		require.NoError(t, reg.RecordClone(rec.ID, buyer))
		assert.NoError(t, reg.SetListing(rec.ID, creator, false))
	})

	t.Run("clone lock is one way", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)

		require.NoError(t, reg.LockClones(rec.ID, creator))
		assert.True(t, rec.ClonesLocked)
		assert.Equal(t, KindAlreadyLocked, KindOf(reg.LockClones(rec.ID, creator)))
		assert.True(t, rec.ClonesLocked)
	})

	t.Run("image lock forbids further image updates", func(t *testing.T) {
		reg, code := newTestRegistry()
		rec := register(t, reg, code, "one", nil, true)

		img := "ipfs://cover"
		require.NoError(t, reg.SetImage(rec.ID, creator, &img))
		require.NoError(t, reg.LockImage(rec.ID, creator))
		assert.Equal(t, KindAlreadyLocked, KindOf(reg.SetImage(rec.ID, creator, nil)))
		assert.Equal(t, &img, rec.ImageRef)
	})
}

func TestVerifyCodeHash(t *testing.T) {
	reg, code := newTestRegistry()
	rec := register(t, reg, code, "one", nil, true)

	assert.NoError(t, reg.VerifyCodeHash(context.Background(), rec))

	code.Replace(rec.CodeRef, []byte("tampered body"))
	err := reg.VerifyCodeHash(context.Background(), rec)
	assert.Equal(t, KindCodeTampered, KindOf(err))
}

func TestRegistryQueries(t *testing.T) {
	reg, code := newTestRegistry()
	a := register(t, reg, code, "one", nil, true)
	register(t, reg, code, "two", nil, true)

	hash := code.Put("code/hidden", []byte("hidden body"))
	_, err := reg.Register(models.WorkflowMeta{Name: "hidden", Category: "automation"}, "code/hidden", hash, buyer)
	require.NoError(t, err)

	assert.Len(t, reg.ByCreator(creator), 2)
	assert.Len(t, reg.ByCreator(buyer), 1)
	// Category queries only surface listed records.
	assert.Len(t, reg.ByCategory("automation"), 2)
	assert.True(t, reg.NameExists(creator, "one"))
	assert.False(t, reg.NameExists(buyer, "one"))
	assert.Len(t, reg.ByCodeRef(a.CodeRef), 1)
	assert.Len(t, reg.All(), 3)
}
