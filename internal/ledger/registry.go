package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowmarket/internal/codestore"
	"flowmarket/pkg/models"
)

// Registry is the authoritative table of published workflow records. All
// mutation goes through its methods; records handed out by queries are owned
// by the registry and must not be written to by callers.
type Registry struct {
	nextID  models.WorkflowID
	records map[models.WorkflowID]*models.WorkflowRecord
	byHash  map[string]models.WorkflowID
	byName  map[nameKey]models.WorkflowID

	code codestore.Store
	now  func() time.Time
}

type nameKey struct {
	creator models.AccountID
	name    string
}

// NewRegistry builds an empty registry backed by the given code store.
func NewRegistry(code codestore.Store) *Registry {
	return &Registry{
		nextID:  1,
		records: make(map[models.WorkflowID]*models.WorkflowRecord),
		byHash:  make(map[string]models.WorkflowID),
		byName:  make(map[nameKey]models.WorkflowID),
		code:    code,
		now:     time.Now,
	}
}

// Register stores a new workflow record and returns its id. Uniqueness of the
// code hash is registry-wide; name uniqueness is per creator. A parented
// record bumps the parent's fork count by exactly one.
func (r *Registry) Register(meta models.WorkflowMeta, codeRef, codeHash string, creator models.AccountID) (*models.WorkflowRecord, error) {
	if _, exists := r.byHash[codeHash]; exists {
		return nil, errf(KindDuplicateCode, "code hash %s is already registered", codeHash)
	}
	if _, exists := r.byName[nameKey{creator, meta.Name}]; exists {
		return nil, errf(KindDuplicateName, "creator %s already has a workflow named %q", creator, meta.Name)
	}
	if meta.Price != nil && meta.Price.IsNegative() {
		return nil, errf(KindInvalidPrice, "price must not be negative, got %s", meta.Price)
	}
	var parent *models.WorkflowRecord
	if meta.ParentID != nil {
		parent = r.records[*meta.ParentID]
		if parent == nil {
			return nil, errf(KindParentNotFound, "parent workflow %d does not exist", *meta.ParentID)
		}
	}

	now := r.now()
	rec := &models.WorkflowRecord{
		ID:             r.nextID,
		Creator:        creator,
		Name:           meta.Name,
		Category:       meta.Category,
		Description:    meta.Description,
		CodeRef:        codeRef,
		CodeHash:       codeHash,
		StrategyRef:    meta.StrategyRef,
		Metadata:       meta.Metadata,
		ConfigDefaults: meta.ConfigDefaults,
		ParentID:       meta.ParentID,
		Capabilities:   meta.Capabilities,
		Price:          meta.Price,
		ImageRef:       meta.ImageRef,
		IsListed:       meta.IsListed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.nextID++
	r.records[rec.ID] = rec
	r.byHash[codeHash] = rec.ID
	r.byName[nameKey{creator, meta.Name}] = rec.ID
	if parent != nil {
		parent.ForkCount++
		parent.UpdatedAt = now
	}
	return rec, nil
}

// IssueTicket snapshots the record's price and escrows a matching payment.
// Unlisted records are issuable only to their own creator. A payment attached
// to a free record is refunded before the call fails.
func (r *Registry) IssueTicket(workflowID models.WorkflowID, buyer models.AccountID, payment *Payment, vault *Vault) (*Ticket, error) {
	refund := func(kind Kind, format string, args ...any) error {
		if payment != nil {
			vault.Deposit(buyer, payment)
		}
		return errf(kind, format, args...)
	}

	rec := r.records[workflowID]
	if rec == nil {
		return nil, refund(KindNotFound, "workflow %d does not exist", workflowID)
	}
	if !rec.IsListed && buyer != rec.Creator {
		return nil, refund(KindUnlisted, "workflow %d is not listed", workflowID)
	}

	price := rec.EffectivePrice()
	if price.IsPositive() {
		if payment == nil {
			return nil, errf(KindPaymentMismatch, "workflow %d costs %s, no payment attached", workflowID, price)
		}
		if !payment.Amount().Equal(price) {
			return nil, refund(KindPaymentMismatch, "workflow %d costs %s, payment is %s", workflowID, price, payment.Amount())
		}
	} else if payment != nil {
		return nil, refund(KindUnexpectedPayment, "workflow %d is free, unexpected payment of %s", workflowID, payment.Amount())
	}

	return &Ticket{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Buyer:      buyer,
		Creator:    rec.Creator,
		Price:      price,
		IssuedAt:   r.now(),
		escrow:     payment,
	}, nil
}

// RecordClone bumps the record's clone counter. It is invoked exactly once per
// successful clone; idempotency is the caller's responsibility.
func (r *Registry) RecordClone(workflowID models.WorkflowID, cloner models.AccountID) error {
	rec := r.records[workflowID]
	if rec == nil {
		return errf(KindNotFound, "workflow %d does not exist", workflowID)
	}
	rec.CloneCount++
	rec.UpdatedAt = r.now()
	return nil
}

// VerifyCodeHash re-derives the hash of the record's code from the content
// store and rejects the call when the deployed code no longer matches what was
// registered.
func (r *Registry) VerifyCodeHash(ctx context.Context, rec *models.WorkflowRecord) error {
	_, hash, err := r.code.Resolve(ctx, rec.CodeRef, rec.StrategyRef)
	if err != nil {
		return errf(KindCodeTampered, "cannot resolve code for workflow %d: %v", rec.ID, err)
	}
	if hash != rec.CodeHash {
		return errf(KindCodeTampered, "workflow %d code hash mismatch: registered %s, resolved %s", rec.ID, rec.CodeHash, hash)
	}
	return nil
}

// mutableRecord loads a record and enforces the creator-only mutation rule
// shared by every setter.
func (r *Registry) mutableRecord(workflowID models.WorkflowID, caller models.AccountID) (*models.WorkflowRecord, error) {
	rec := r.records[workflowID]
	if rec == nil {
		return nil, errf(KindNotFound, "workflow %d does not exist", workflowID)
	}
	if rec.Creator != caller {
		return nil, errf(KindNotSeller, "account %s is not the creator of workflow %d", caller, workflowID)
	}
	return rec, nil
}

// SetListing toggles the record's listed flag. Listing a record that has
// already been cloned is rejected; unlisting is always allowed.
func (r *Registry) SetListing(workflowID models.WorkflowID, caller models.AccountID, listed bool) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	if listed && !rec.IsListed && rec.CloneCount > 0 {
		return errf(KindHasClones, "workflow %d has %d clones and cannot be re-listed", workflowID, rec.CloneCount)
	}
	rec.IsListed = listed
	rec.UpdatedAt = r.now()
	return nil
}

// UpdateMetadata replaces the record's descriptive fields and metadata blob.
func (r *Registry) UpdateMetadata(workflowID models.WorkflowID, caller models.AccountID, description string, metadata map[string]any) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	rec.Description = description
	rec.Metadata = metadata
	rec.UpdatedAt = r.now()
	return nil
}

// UpdateConfigDefaults replaces the record's default strategy configuration.
func (r *Registry) UpdateConfigDefaults(workflowID models.WorkflowID, caller models.AccountID, defaults map[string]any) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	rec.ConfigDefaults = defaults
	rec.UpdatedAt = r.now()
	return nil
}

// SetPrice updates the clone price. A nil price makes the workflow free.
func (r *Registry) SetPrice(workflowID models.WorkflowID, caller models.AccountID, price *decimal.Decimal) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	if price != nil && price.IsNegative() {
		return errf(KindInvalidPrice, "price must not be negative, got %s", price)
	}
	rec.Price = price
	rec.UpdatedAt = r.now()
	return nil
}

// SetImage updates the record's image reference unless the image is locked.
func (r *Registry) SetImage(workflowID models.WorkflowID, caller models.AccountID, imageRef *string) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	if rec.ImageLocked {
		return errf(KindAlreadyLocked, "workflow %d image is locked", workflowID)
	}
	rec.ImageRef = imageRef
	rec.UpdatedAt = r.now()
	return nil
}

// LockImage makes the image reference immutable. One-way.
func (r *Registry) LockImage(workflowID models.WorkflowID, caller models.AccountID) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	if rec.ImageLocked {
		return errf(KindAlreadyLocked, "workflow %d image is already locked", workflowID)
	}
	rec.ImageLocked = true
	rec.UpdatedAt = r.now()
	return nil
}

// LockClones forbids all further clones of the record. One-way.
func (r *Registry) LockClones(workflowID models.WorkflowID, caller models.AccountID) error {
	rec, err := r.mutableRecord(workflowID, caller)
	if err != nil {
		return err
	}
	if rec.ClonesLocked {
		return errf(KindAlreadyLocked, "workflow %d clones are already locked", workflowID)
	}
	rec.ClonesLocked = true
	rec.UpdatedAt = r.now()
	return nil
}

// Get returns a record by id.
func (r *Registry) Get(workflowID models.WorkflowID) (*models.WorkflowRecord, error) {
	rec := r.records[workflowID]
	if rec == nil {
		return nil, errf(KindNotFound, "workflow %d does not exist", workflowID)
	}
	return rec, nil
}

// ByCreator returns every record published by the account, id-ordered.
func (r *Registry) ByCreator(creator models.AccountID) []*models.WorkflowRecord {
	return r.collect(func(rec *models.WorkflowRecord) bool {
		return rec.Creator == creator
	})
}

// ByCategory returns the listed records in a category, id-ordered.
func (r *Registry) ByCategory(category string) []*models.WorkflowRecord {
	return r.collect(func(rec *models.WorkflowRecord) bool {
		return rec.IsListed && rec.Category == category
	})
}

// Forks returns the records registered with the given parent, id-ordered.
func (r *Registry) Forks(parentID models.WorkflowID) []*models.WorkflowRecord {
	return r.collect(func(rec *models.WorkflowRecord) bool {
		return rec.ParentID != nil && *rec.ParentID == parentID
	})
}

// ByCodeRef returns the records sharing a code reference, id-ordered. Used for
// duplicate checks against a deployed unit.
func (r *Registry) ByCodeRef(codeRef string) []*models.WorkflowRecord {
	return r.collect(func(rec *models.WorkflowRecord) bool {
		return rec.CodeRef == codeRef
	})
}

// All returns every record, id-ordered.
func (r *Registry) All() []*models.WorkflowRecord {
	return r.collect(func(*models.WorkflowRecord) bool { return true })
}

// NameExists reports whether the creator already registered the name.
func (r *Registry) NameExists(creator models.AccountID, name string) bool {
	_, ok := r.byName[nameKey{creator, name}]
	return ok
}

func (r *Registry) collect(keep func(*models.WorkflowRecord) bool) []*models.WorkflowRecord {
	var out []*models.WorkflowRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
