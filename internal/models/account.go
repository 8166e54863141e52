package models

import (
	"time"
)

type AccountStatus string

const (
	AccountOpen   AccountStatus = "open"
	AccountClosed AccountStatus = "closed"
)

type Account struct {
	ID        string        `json:"id" db:"id"`
	Balance   int64         `json:"balance" db:"balance"` // in cents
	Version   int64         `json:"version" db:"version"` // for optimistic locking
	Status    AccountStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

func (a *Account) Open() bool {
	return a.Status == AccountOpen
}
