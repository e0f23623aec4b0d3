// Package models defines the domain models shared by the ledger core and the
// service surfaces.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowID identifies one published workflow record. IDs are allocated
// monotonically by the registry and are never reused.
type WorkflowID uint64

// WorkflowMeta carries the publisher-supplied metadata of a workflow at
// registration time.
type WorkflowMeta struct {
	Name           string                 `json:"name"`
	Category       string                 `json:"category"`
	Description    string                 `json:"description"`
	StrategyRef    string                 `json:"strategy_ref"` // strategy-contract identifier
	Metadata       map[string]any         `json:"metadata,omitempty"`
	ConfigDefaults map[string]any         `json:"config_defaults,omitempty"`
	ParentID       *WorkflowID            `json:"parent_id,omitempty"` // fork lineage
	Capabilities   map[string]string      `json:"capabilities,omitempty"`
	Price          *decimal.Decimal       `json:"price,omitempty"`
	ImageRef       *string                `json:"image_ref,omitempty"`
	IsListed       bool                   `json:"is_listed"`
}

// WorkflowRecord is one published workflow's registry entry.
type WorkflowRecord struct {
	ID             WorkflowID             `json:"id"`
	Creator        AccountID              `json:"creator"`
	Name           string                 `json:"name"`
	Category       string                 `json:"category"`
	Description    string                 `json:"description"`
	CodeRef        string                 `json:"code_ref"`
	CodeHash       string                 `json:"code_hash"`
	StrategyRef    string                 `json:"strategy_ref"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	ConfigDefaults map[string]any         `json:"config_defaults,omitempty"`
	ParentID       *WorkflowID            `json:"parent_id,omitempty"`
	Capabilities   map[string]string      `json:"capabilities,omitempty"`
	Price          *decimal.Decimal       `json:"price,omitempty"`
	ImageRef       *string                `json:"image_ref,omitempty"`
	IsListed       bool                   `json:"is_listed"`
	CloneCount     uint64                 `json:"clone_count"`
	ForkCount      uint64                 `json:"fork_count"`
	ClonesLocked   bool                   `json:"clones_locked"`
	ImageLocked    bool                   `json:"image_locked"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// EffectivePrice resolves a nil price to zero.
func (r *WorkflowRecord) EffectivePrice() decimal.Decimal {
	if r.Price == nil {
		return decimal.Zero
	}
	return *r.Price
}

// Trigger says how a workflow execution was initiated.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)
