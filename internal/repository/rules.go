package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mastuka/tg-tool-bot/internal/model"
)

// RuleRepository persists forwarding rules and their append-only audit logs.
type RuleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a rule repository.
func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create inserts a new rule row.
func (r *RuleRepository) Create(rule *model.ForwardingRule) error {
	if err := r.db.Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Get returns the rule by id, or nil when absent.
func (r *RuleRepository) Get(id uint) (*model.ForwardingRule, error) {
	var rule model.ForwardingRule
	err := r.db.First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule: %w", err)
	}
	return &rule, nil
}

// List returns all rules, newest first.
func (r *RuleRepository) List() ([]model.ForwardingRule, error) {
	var rules []model.ForwardingRule
	if err := r.db.Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListByStatus returns all rules in one status.
func (r *RuleRepository) ListByStatus(status model.RuleStatus) ([]model.ForwardingRule, error) {
	var rules []model.ForwardingRule
	if err := r.db.Where("status = ?", status).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules by status: %w", err)
	}
	return rules, nil
}

// UpdateStatus sets only the status column.
func (r *RuleRepository) UpdateStatus(id uint, status model.RuleStatus) error {
	err := r.db.Model(&model.ForwardingRule{}).Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	return nil
}

// AdvanceCheckpoint persists the resume checkpoint and adds delivered to the
// forwarded counter in one write.
func (r *RuleRepository) AdvanceCheckpoint(id uint, lastMessageID int64, delivered int64) error {
	updates := map[string]interface{}{"last_message_id": lastMessageID}
	if delivered > 0 {
		updates["messages_forwarded"] = gorm.Expr("messages_forwarded + ?", delivered)
	}
	err := r.db.Model(&model.ForwardingRule{}).Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to advance rule checkpoint: %w", err)
	}
	return nil
}

// Delete removes the rule row.
func (r *RuleRepository) Delete(id uint) error {
	if err := r.db.Delete(&model.ForwardingRule{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// LogForwarded appends one forwarded-message audit record.
func (r *RuleRepository) LogForwarded(rec *model.ForwardedMessage) error {
	if rec.ForwardedAt.IsZero() {
		rec.ForwardedAt = time.Now()
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to log forwarded message: %w", err)
	}
	return nil
}

// LogError appends one forwarding-error audit record.
func (r *RuleRepository) LogError(ruleID uint, phone, errType, message string) error {
	rec := model.ForwardingError{
		RuleID:       ruleID,
		AccountPhone: phone,
		ErrorType:    errType,
		ErrorMsg:     message,
		OccurredAt:   time.Now(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to log forwarding error: %w", err)
	}
	return nil
}

// ListForwarded returns forwarded-message records for one rule, newest first.
func (r *RuleRepository) ListForwarded(ruleID uint, limit int) ([]model.ForwardedMessage, error) {
	var recs []model.ForwardedMessage
	q := r.db.Where("rule_id = ?", ruleID).Order("forwarded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list forwarded messages: %w", err)
	}
	return recs, nil
}

// ListErrors returns error records for one rule, newest first.
func (r *RuleRepository) ListErrors(ruleID uint, limit int) ([]model.ForwardingError, error) {
	var recs []model.ForwardingError
	q := r.db.Where("rule_id = ?", ruleID).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list forwarding errors: %w", err)
	}
	return recs, nil
}

// Statistics aggregates the audit log. ruleID 0 means all rules.
func (r *RuleRepository) Statistics(ruleID uint) (*model.RuleStatistics, error) {
	msgs := r.db.Model(&model.ForwardedMessage{})
	errs := r.db.Model(&model.ForwardingError{})
	if ruleID != 0 {
		msgs = msgs.Where("rule_id = ?", ruleID)
		errs = errs.Where("rule_id = ?", ruleID)
	}

	var stats model.RuleStatistics
	if err := msgs.Count(&stats.TotalForwarded).Error; err != nil {
		return nil, fmt.Errorf("failed to count forwarded messages: %w", err)
	}

	row := struct {
		Destinations int64
		First        *time.Time
		Last         *time.Time
	}{}
	sel := r.db.Model(&model.ForwardedMessage{}).
		Select("COUNT(DISTINCT destination_id) AS destinations, MIN(forwarded_at) AS first, MAX(forwarded_at) AS last")
	if ruleID != 0 {
		sel = sel.Where("rule_id = ?", ruleID)
	}
	if err := sel.Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate forwarded messages: %w", err)
	}
	stats.DistinctDestinations = row.Destinations
	stats.FirstForwardedAt = row.First
	stats.LastForwardedAt = row.Last

	if err := errs.Count(&stats.TotalErrors).Error; err != nil {
		return nil, fmt.Errorf("failed to count forwarding errors: %w", err)
	}

	return &stats, nil
}
