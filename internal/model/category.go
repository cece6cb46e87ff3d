package model

import "time"

// Category groups inventory items. Categories are shared references,
// never owned by an account.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
