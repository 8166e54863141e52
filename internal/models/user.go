package models

import "time"

type User struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email" example:"user@example.com"`
	Username  string     `json:"username" db:"username" example:"johndoe"`
	FullName  string     `json:"full_name" db:"full_name" example:"John Doe"`
	AccountID string     `json:"account_id" db:"account_id"` // ledger account
	Role      string     `json:"role" db:"role"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
