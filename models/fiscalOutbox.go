package models

import (
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
)

// Outbox publish statuses for FiscalOutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// FiscalOutboxRecord is written in the same transaction as a fiscal sale and
// published after commit by the outbox dispatcher.
type FiscalOutboxRecord struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	SaleId           int        `gorm:"not null;index" json:"sale_id"`
	BranchId         int        `gorm:"not null" json:"branch_id"`
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishedAt      *time.Time `json:"published_at"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r FiscalOutboxRecord) ToMessage() config.FiscalMessage {
	return config.FiscalMessage{
		ID:            r.ID,
		SaleId:        r.SaleId,
		BranchId:      r.BranchId,
		RequestedAt:   r.CreatedAt,
		CorrelationId: r.CorrelationId,
	}
}
