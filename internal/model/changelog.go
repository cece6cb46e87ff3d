package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultChangeReason is recorded when a mutation is logged without a
// caller-supplied reason.
const DefaultChangeReason = "No reason provided"

// FieldChange records one field that differed between the previous and new
// state of an item.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeLog is an immutable audit record of a single item mutation.
// At least one of ChangeQuantity, ChangePrice or Details is always set;
// entries are never updated or deleted (they cascade with their item).
type ChangeLog struct {
	ID             int64            `json:"id"`
	ItemID         int64            `json:"item_id"`
	ChangeQuantity *int64           `json:"change_quantity,omitempty"`
	ChangePrice    *decimal.Decimal `json:"change_price,omitempty"`
	Reason         string           `json:"reason"`
	Details        []FieldChange    `json:"details,omitempty"`
	ChangedAt      time.Time        `json:"changed_at"`
	ChangedBy      int64            `json:"changed_by"`

	// Joined fields (not always populated).
	ItemName       string `json:"item_name,omitempty"`
	ChangedByEmail string `json:"changed_by_email,omitempty"`
}
