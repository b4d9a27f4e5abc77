package models

import "github.com/shopspring/decimal"

// User is the remote system's account record. The client only ever holds a
// read-only cached copy; identity is by ID.
type User struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	ImagePath string          `json:"imagePath,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}
