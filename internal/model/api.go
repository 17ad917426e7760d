package model

import "time"

// RegisterAccountRequest starts the registration of a new account.
type RegisterAccountRequest struct {
	Phone   string `json:"phone" binding:"required"`
	APIID   int    `json:"api_id" binding:"required"`
	APIHash string `json:"api_hash" binding:"required"`
	Proxy   string `json:"proxy"`
}

// CompleteAuthRequest finishes a pending registration with the delivered
// login code and, when two-step verification is enabled, the password.
type CompleteAuthRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// UpdateAccountStatusRequest forces an account into a status.
type UpdateAccountStatusRequest struct {
	Status AccountStatus `json:"status" binding:"required"`
}

// CreateRuleRequest declares a new forwarding rule.
type CreateRuleRequest struct {
	AccountPhone   string   `json:"account_phone" binding:"required"`
	SourceID       int64    `json:"source_id" binding:"required"`
	SourceName     string   `json:"source_name"`
	DestinationIDs []int64  `json:"destination_ids" binding:"required"`
	Keywords       []string `json:"keywords"`
}

// RuleResponse is the wire form of a rule, with the JSON columns decoded and
// the live session counter merged in when the rule is running.
type RuleResponse struct {
	ID             uint       `json:"id"`
	AccountPhone   string     `json:"account_phone"`
	SourceID       int64      `json:"source_id"`
	SourceName     string     `json:"source_name"`
	DestinationIDs []int64    `json:"destination_ids"`
	Keywords       []string   `json:"keywords,omitempty"`
	Status         RuleStatus `json:"status"`
	LastMessageID  int64      `json:"last_message_id"`
	Forwarded      int64      `json:"messages_forwarded"`
	// SessionForwarded counts deliveries by the current live session only;
	// zero when the rule is stopped.
	SessionForwarded int64     `json:"session_forwarded"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewRuleResponse converts a persisted rule to its wire form.
func NewRuleResponse(r *ForwardingRule) RuleResponse {
	return RuleResponse{
		ID:             r.ID,
		AccountPhone:   r.AccountPhone,
		SourceID:       r.SourceID,
		SourceName:     r.SourceName,
		DestinationIDs: r.Destinations(),
		Keywords:       r.KeywordList(),
		Status:         r.Status,
		LastMessageID:  r.LastMessageID,
		Forwarded:      r.Forwarded,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// AccountSummary is the per-account slice of the pool status report.
type AccountSummary struct {
	Phone        string        `json:"phone"`
	Status       AccountStatus `json:"status"`
	Username     string        `json:"username,omitempty"`
	DailyCount   int           `json:"daily_count"`
	DailyLimit   int           `json:"daily_limit"`
	ErrorCount   int           `json:"error_count"`
	LastError    string        `json:"last_error,omitempty"`
	LastActivity time.Time     `json:"last_activity"`
}

// PoolStatus aggregates the pool by status plus per-account detail.
type PoolStatus struct {
	Total    int              `json:"total"`
	ByStatus map[string]int   `json:"by_status"`
	Accounts []AccountSummary `json:"accounts"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
