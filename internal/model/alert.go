package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertConfiguration asks for a renewal reminder a number of days before a
// contract ends.
type AlertConfiguration struct {
	BaseEntity
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	ContractID uuid.UUID `json:"contract_id" db:"contract_id"`
	Email      string    `json:"email" db:"email"`
	DaysBefore int       `json:"days_before" db:"days_before"`
}

// AlertHistory records a reminder that was sent or a configuration change.
type AlertHistory struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	ContractID uuid.UUID `json:"contract_id" db:"contract_id"`
	Email      string    `json:"email" db:"email"`
	AlertType  string    `json:"alert_type" db:"alert_type"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
}

// AlertConfigRequest is the API request to configure renewal reminders.
type AlertConfigRequest struct {
	Email     string `json:"email"`
	AlertDays []int  `json:"alert_days"`
}

// ContractDocument is a file attached to a contract or invoice.
type ContractDocument struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	ContractID uuid.UUID `json:"contract_id" db:"contract_id"`
	Name       string    `json:"name" db:"name"`
	Key        string    `json:"key" db:"storage_key"`
	Size       int64     `json:"size" db:"size"`
	Type       string    `json:"type" db:"content_type"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}
