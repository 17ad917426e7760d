package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mastuka/tg-tool-bot/internal/model"
)

// AccountRepository persists accounts and their usage counters.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates an account repository.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(acc *model.Account) error {
	if err := r.db.Create(acc).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByPhone returns the account for phone, or nil when absent.
func (r *AccountRepository) GetByPhone(phone string) (*model.Account, error) {
	var acc model.Account
	err := r.db.First(&acc, "phone = ?", phone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &acc, nil
}

// List returns all accounts ordered by phone.
func (r *AccountRepository) List() ([]model.Account, error) {
	var accounts []model.Account
	if err := r.db.Order("phone").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListByStatus returns the derived view of accounts in one status.
func (r *AccountRepository) ListByStatus(status model.AccountStatus) ([]model.Account, error) {
	var accounts []model.Account
	if err := r.db.Where("status = ?", status).Order("phone").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts by status: %w", err)
	}
	return accounts, nil
}

// Save writes the full account row back.
func (r *AccountRepository) Save(acc *model.Account) error {
	if err := r.db.Save(acc).Error; err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// UpdateStatus sets only the status column.
func (r *AccountRepository) UpdateStatus(phone string, status model.AccountStatus) error {
	err := r.db.Model(&model.Account{}).Where("phone = ?", phone).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	return nil
}

// RecordError increments the error counter and stores the message, returning
// the new counter value.
func (r *AccountRepository) RecordError(phone, message string) (int, error) {
	var acc model.Account
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acc, "phone = ?", phone).Error; err != nil {
			return err
		}
		acc.ErrorCount++
		acc.LastError = message
		return tx.Save(&acc).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record account error: %w", err)
	}
	return acc.ErrorCount, nil
}

// ResetDailyCounters zeroes the daily counter of every account whose reset
// date is older than today. Used by the midnight job; GetAvailable does the
// same per account lazily.
func (r *AccountRepository) ResetDailyCounters(today string) (int64, error) {
	res := r.db.Model(&model.Account{}).
		Where("last_reset_date <> ?", today).
		Updates(map[string]interface{}{"daily_count": 0, "last_reset_date": today})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TouchUsage bumps the daily counter and last-activity timestamp after the
// account has been handed out.
func (r *AccountRepository) TouchUsage(acc *model.Account, now time.Time) error {
	acc.DailyCount++
	acc.LastActivity = now
	if err := r.db.Model(acc).Updates(map[string]interface{}{
		"daily_count":   acc.DailyCount,
		"last_activity": acc.LastActivity,
	}).Error; err != nil {
		return fmt.Errorf("failed to update account usage: %w", err)
	}
	return nil
}

// Delete removes the account row.
func (r *AccountRepository) Delete(phone string) error {
	if err := r.db.Delete(&model.Account{}, "phone = ?", phone).Error; err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
