package model

import (
	"time"
)

// AccountStatus is the single authoritative lifecycle state of an account.
// Views such as "connectable" or "limited" are derived from it; there are no
// separate membership lists to keep in sync.
type AccountStatus string

const (
	StatusPendingCode AccountStatus = "pending_code"
	StatusPending2FA  AccountStatus = "pending_2fa"
	StatusActive      AccountStatus = "active"
	StatusOffline     AccountStatus = "offline"
	StatusFloodWait   AccountStatus = "flood_wait"
	StatusError       AccountStatus = "error"
	StatusLimited     AccountStatus = "limited"
	StatusBanned      AccountStatus = "banned"
)

// Valid reports whether s is a member of the closed status enum.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPendingCode, StatusPending2FA, StatusActive, StatusOffline,
		StatusFloodWait, StatusError, StatusLimited, StatusBanned:
		return true
	}
	return false
}

// Connected reports whether a live protocol handle is expected to exist for
// an account in this state.
func (s AccountStatus) Connected() bool {
	return s == StatusActive || s == StatusFloodWait || s == StatusLimited
}

// Account is one managed Telegram identity and its persisted runtime state.
type Account struct {
	Phone         string        `json:"phone" gorm:"primaryKey;type:varchar(20)"`
	APIID         int           `json:"api_id" gorm:"not null"`
	APIHash       string        `json:"-" gorm:"type:varchar(64);not null"`
	Proxy         string        `json:"proxy,omitempty" gorm:"type:varchar(255)"`
	Status        AccountStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	UserID        int64         `json:"user_id"`
	Username      string        `json:"username" gorm:"type:varchar(64)"`
	ErrorCount    int           `json:"error_count"`
	LastError     string        `json:"last_error" gorm:"type:text"`
	DailyCount    int           `json:"daily_count"`
	LastResetDate string        `json:"last_reset_date" gorm:"type:varchar(10)"` // YYYY-MM-DD
	LastActivity  time.Time     `json:"last_activity"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "accounts"
}
