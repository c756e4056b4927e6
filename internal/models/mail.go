package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbound mail delivery states.
const (
	MailStatusPending = "pending"
	MailStatusSent    = "sent"
	MailStatusFailed  = "failed"
)

// OutboundMail records a queued mail delivery. The row is written before
// the asynchronous send starts and updated when the send finishes.
type OutboundMail struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Recipient string `gorm:"type:text;not null;index"` // Destination address.
	Subject   string `gorm:"type:text;not null"`       // Mail subject line.

	TemplateData datatypes.JSON `gorm:"type:jsonb"` // Template data passed to the body renderer.

	Status string `gorm:"type:text;not null;default:pending"` // pending, sent or failed.
	Error  string `gorm:"type:text"`                          // Last delivery error, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
