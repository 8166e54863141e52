package models

import (
	"time"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

type Event struct {
	ID                  string      `json:"id" db:"id"`
	Title               string      `json:"title" db:"title"`
	Description         string      `json:"description" db:"description"`
	Cost                int64       `json:"cost" db:"cost"` // in cents, 0 = free
	MaxParticipants     int         `json:"max_participants" db:"max_participants"` // 0 = unlimited
	CurrentParticipants int         `json:"current_participants" db:"current_participants"`
	Status              EventStatus `json:"status" db:"status"`
	CreatorID           string      `json:"creator_id" db:"creator_id"`
	EventDate           *time.Time  `json:"event_date,omitempty" db:"event_date"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// CanJoin reports whether the event accepts new participants.
func (e *Event) CanJoin() bool {
	if e.Status != EventActive {
		return false
	}
	if e.MaxParticipants > 0 && e.CurrentParticipants >= e.MaxParticipants {
		return false
	}
	return true
}

func (e *Event) Paid() bool {
	return e.Cost > 0
}
