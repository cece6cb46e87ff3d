package model

import "time"

// User represents an account that can own inventory items.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// CanModifyItem reports whether a user may mutate or delete an item.
// Only the owning user or an administrator may do so.
func CanModifyItem(userID int64, isAdmin bool, item *Item) bool {
	if isAdmin {
		return true
	}
	return item != nil && item.OwnerID == userID
}
