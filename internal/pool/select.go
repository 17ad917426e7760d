package pool

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
)

// GetAvailable picks one active account for a unit of work: under the daily
// limit (resetting the counter first when the calendar day rolled over) and
// idle the longest. Selection bumps the usage counter and last-activity as a
// side effect. Returns nil when no account qualifies.
func (p *Pool) GetAvailable(purpose string) (*model.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accounts, err := p.repo.ListByStatus(model.StatusActive)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	day := today()

	var best *model.Account
	var bestIdle time.Duration
	for i := range accounts {
		acc := &accounts[i]

		if acc.LastResetDate != day {
			acc.DailyCount = 0
			acc.LastResetDate = day
			if err := p.repo.Save(acc); err != nil {
				return nil, err
			}
		}

		if acc.DailyCount >= p.cfg.DailyLimit {
			continue
		}

		idle := now.Sub(acc.LastActivity)
		if acc.LastActivity.IsZero() {
			idle = 1<<63 - 1 // never used wins
		}
		if best == nil || idle > bestIdle {
			best = acc
			bestIdle = idle
		}
	}

	if best == nil {
		return nil, nil
	}

	if err := p.repo.TouchUsage(best, now); err != nil {
		return nil, err
	}

	logrus.Infof("Selected account %s for %s (used %d/%d today)",
		best.Phone, purpose, best.DailyCount, p.cfg.DailyLimit)
	return best, nil
}

// StatusReport aggregates the pool by status plus per-account detail.
func (p *Pool) StatusReport() (*model.PoolStatus, error) {
	accounts, err := p.repo.List()
	if err != nil {
		return nil, err
	}

	report := &model.PoolStatus{
		Total:    len(accounts),
		ByStatus: make(map[string]int),
	}
	active := 0
	for _, acc := range accounts {
		report.ByStatus[string(acc.Status)]++
		if acc.Status == model.StatusActive {
			active++
		}
		report.Accounts = append(report.Accounts, model.AccountSummary{
			Phone:        acc.Phone,
			Status:       acc.Status,
			Username:     acc.Username,
			DailyCount:   acc.DailyCount,
			DailyLimit:   p.cfg.DailyLimit,
			ErrorCount:   acc.ErrorCount,
			LastError:    acc.LastError,
			LastActivity: acc.LastActivity,
		})
	}

	if p.metrics != nil {
		p.metrics.ActiveAccounts.Set(float64(active))
	}
	return report, nil
}

// UpdateStatus forces an account into a status from the closed enum. Moving
// to banned or offline releases the handle; moving to active connects.
func (p *Pool) UpdateStatus(phone string, status model.AccountStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}

	switch status {
	case model.StatusBanned, model.StatusOffline:
		p.mu.Lock()
		ma := p.accounts[phone]
		delete(p.accounts, phone)
		p.mu.Unlock()
		if ma != nil {
			p.release(ma)
		}
	case model.StatusActive:
		return p.Connect(p.rootCtx, phone)
	}

	return p.repo.UpdateStatus(phone, status)
}

// MarkError counts a failure against the account. Once the counter crosses
// the threshold the account is demoted to limited and no longer selectable.
func (p *Pool) MarkError(phone, message string) error {
	count, err := p.repo.RecordError(phone, message)
	if err != nil {
		return err
	}
	if p.cfg.ErrorThreshold > 0 && count >= p.cfg.ErrorThreshold {
		logrus.Warnf("Account %s crossed %d errors, marking limited", phone, count)
		return p.repo.UpdateStatus(phone, model.StatusLimited)
	}
	return nil
}

// MarkFloodWait parks the account in flood_wait and restores it to active
// once the signaled duration has elapsed, unless something else moved it
// first or the pool shut down.
func (p *Pool) MarkFloodWait(phone string, wait time.Duration) error {
	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}

	acc.Status = model.StatusFloodWait
	acc.LastError = fmt.Sprintf("flood wait for %s", wait)
	if err := p.repo.Save(acc); err != nil {
		return err
	}

	// after Close the wait group may already be drained; leave the account
	// parked, the next boot's Connect clears it
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		select {
		case <-p.rootCtx.Done():
			return
		case <-time.After(wait):
		}
		current, err := p.repo.GetByPhone(phone)
		if err != nil || current == nil || current.Status != model.StatusFloodWait {
			return
		}
		if err := p.repo.UpdateStatus(phone, model.StatusActive); err != nil {
			logrus.Errorf("Failed to restore %s after flood wait: %v", phone, err)
		}
	}()

	return nil
}

// noteFailure records a connect-path failure, honoring flood waits.
func (p *Pool) noteFailure(phone string, err error) {
	if wait, ok := protocol.AsFloodWait(err); ok {
		if p.metrics != nil {
			p.metrics.FloodWaits.Inc()
		}
		if fwErr := p.MarkFloodWait(phone, wait); fwErr != nil {
			logrus.Errorf("Failed to mark flood wait for %s: %v", phone, fwErr)
		}
		return
	}
	if markErr := p.MarkError(phone, err.Error()); markErr != nil {
		logrus.Errorf("Failed to record error for %s: %v", phone, markErr)
	}
}

// resetDailyCounters is the midnight cron job; GetAvailable also resets
// lazily so a stopped job never blocks selection.
func (p *Pool) resetDailyCounters() {
	n, err := p.repo.ResetDailyCounters(today())
	if err != nil {
		logrus.Errorf("Daily counter reset failed: %v", err)
		return
	}
	if n > 0 {
		logrus.Infof("Daily counters reset for %d accounts", n)
	}
}
