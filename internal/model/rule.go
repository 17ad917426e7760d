package model

import (
	"encoding/json"
	"time"
)

// RuleStatus is the persisted state of a forwarding rule.
type RuleStatus string

const (
	RuleStopped RuleStatus = "stopped"
	RuleRunning RuleStatus = "running"
	RuleError   RuleStatus = "error"
)

// ForwardingRule maps one source conversation plus an optional keyword filter
// to an ordered set of destination conversations, owned by one account.
type ForwardingRule struct {
	ID             uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	AccountPhone   string     `json:"account_phone" gorm:"type:varchar(20);not null;index"`
	SourceID       int64      `json:"source_id" gorm:"not null"`
	SourceName     string     `json:"source_name" gorm:"type:varchar(255)"`
	DestinationIDs string     `json:"-" gorm:"type:text;not null"` // JSON array of chat ids
	Keywords       string     `json:"-" gorm:"type:text"`          // JSON array, empty = forward all
	Status         RuleStatus `json:"status" gorm:"type:varchar(20);not null;default:stopped"`
	LastMessageID  int64      `json:"last_message_id" gorm:"default:0"`
	Forwarded      int64      `json:"messages_forwarded" gorm:"column:messages_forwarded;default:0"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Account *Account `json:"-" gorm:"foreignKey:AccountPhone;references:Phone"`
}

// TableName specifies the table name for ForwardingRule
func (ForwardingRule) TableName() string {
	return "forwarding_rules"
}

// Destinations decodes the persisted destination list.
func (r *ForwardingRule) Destinations() []int64 {
	var ids []int64
	if r.DestinationIDs != "" {
		_ = json.Unmarshal([]byte(r.DestinationIDs), &ids)
	}
	return ids
}

// SetDestinations encodes ids, dropping duplicates but keeping order.
func (r *ForwardingRule) SetDestinations(ids []int64) error {
	seen := make(map[int64]bool, len(ids))
	deduped := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			deduped = append(deduped, id)
		}
	}
	raw, err := json.Marshal(deduped)
	if err != nil {
		return err
	}
	r.DestinationIDs = string(raw)
	return nil
}

// KeywordList decodes the persisted keyword filter. Empty means no filter.
func (r *ForwardingRule) KeywordList() []string {
	var words []string
	if r.Keywords != "" {
		_ = json.Unmarshal([]byte(r.Keywords), &words)
	}
	return words
}

// SetKeywords encodes the keyword filter; nil or empty clears it.
func (r *ForwardingRule) SetKeywords(words []string) error {
	if len(words) == 0 {
		r.Keywords = ""
		return nil
	}
	raw, err := json.Marshal(words)
	if err != nil {
		return err
	}
	r.Keywords = string(raw)
	return nil
}
