package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item represents an inventory item owned by a single account.
// Quantity and price are never negative. A nil LowStockThreshold means the
// item is not monitored for low stock.
type Item struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Quantity          int64           `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	LowStockThreshold *int64          `json:"low_stock_threshold,omitempty"`
	CategoryID        *int64          `json:"category_id,omitempty"`
	OwnerID           int64           `json:"owner_id"`
	ImageMime         string          `json:"image_mime,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	CategoryName string `json:"category_name,omitempty"`
	OwnerEmail   string `json:"owner_email,omitempty"`
}

// IsLowStock reports whether the item's quantity has fallen below its
// threshold. Items without a threshold are never low stock.
func (i *Item) IsLowStock() bool {
	return i.LowStockThreshold != nil && i.Quantity < *i.LowStockThreshold
}
