package model

import "time"

// ForwardedMessage is one audit record per delivered forward. Rows are only
// ever inserted.
type ForwardedMessage struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RuleID        uint      `json:"rule_id" gorm:"not null;index"`
	AccountPhone  string    `json:"account_phone" gorm:"type:varchar(20);not null"`
	SourceID      int64     `json:"source_id" gorm:"not null"`
	SourceMsgID   int64     `json:"source_message_id" gorm:"not null"`
	DestinationID int64     `json:"destination_id" gorm:"not null"`
	DestMsgID     int64     `json:"destination_message_id"`
	Text          string    `json:"text" gorm:"type:text"`
	ForwardedAt   time.Time `json:"forwarded_at"`
}

// TableName specifies the table name for ForwardedMessage
func (ForwardedMessage) TableName() string {
	return "forwarded_messages"
}

// ForwardingError is one audit record per forwarding failure. Append-only,
// same contract as ForwardedMessage.
type ForwardingError struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RuleID       uint      `json:"rule_id" gorm:"index"`
	AccountPhone string    `json:"account_phone" gorm:"type:varchar(20)"`
	ErrorType    string    `json:"error_type" gorm:"type:varchar(50)"`
	ErrorMsg     string    `json:"error_message" gorm:"type:text"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TableName specifies the table name for ForwardingError
func (ForwardingError) TableName() string {
	return "forwarding_errors"
}

// RuleStatistics aggregates the audit log for one rule or for all rules.
type RuleStatistics struct {
	TotalForwarded       int64      `json:"total_forwarded"`
	DistinctDestinations int64      `json:"distinct_destinations"`
	FirstForwardedAt     *time.Time `json:"first_forwarded_at,omitempty"`
	LastForwardedAt      *time.Time `json:"last_forwarded_at,omitempty"`
	TotalErrors          int64      `json:"total_errors"`
}
