package pool

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// supervise is the reconnect supervisor for one account. It sleeps until
// something triggers it, backs off exponentially between attempts and gives
// up after the configured retry budget. The goroutine never outlives the
// pool: Close cancels ctx and joins through the wait group.
func (p *Pool) supervise(ctx context.Context, ma *managedAccount) {
	defer p.wg.Done()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ma.reconnect:
		}

		delay := backoff(p.cfg.ReconnectBaseDelay, p.cfg.ReconnectMaxDelay, attempts)
		logrus.Infof("Waiting %s before reconnecting %s (attempt %d/%d)",
			delay, ma.phone, attempts+1, p.cfg.ReconnectMaxRetries)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if p.metrics != nil {
			p.metrics.ReconnectAttempts.Inc()
		}

		if err := p.Reconnect(ctx, ma.phone); err != nil {
			attempts++
			logrus.Warnf("Reconnect attempt %d for %s failed: %v", attempts, ma.phone, err)
			if p.cfg.ReconnectMaxRetries > 0 && attempts >= p.cfg.ReconnectMaxRetries {
				logrus.Errorf("Giving up on reconnecting %s after %d attempts", ma.phone, attempts)
				return
			}
			// re-arm so the loop runs again
			select {
			case ma.reconnect <- struct{}{}:
			default:
			}
			continue
		}

		attempts = 0
		logrus.Infof("Account %s reconnected", ma.phone)
	}
}

// checkConnections periodically sweeps the managed accounts and wakes the
// supervisor of any whose handle reports disconnected. A dropped transport
// emits no event through the client, so without the sweep an idle account
// would stay dead until the next borrow.
func (p *Pool) checkConnections(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.rootCtx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		var dead []string
		for phone, ma := range p.accounts {
			ma.mu.Lock()
			disconnected := ma.client == nil || !ma.client.IsConnected()
			ma.mu.Unlock()
			if disconnected {
				dead = append(dead, phone)
			}
		}
		p.mu.Unlock()

		for _, phone := range dead {
			logrus.Warnf("Account %s lost its connection, waking supervisor", phone)
			p.TriggerReconnect(phone)
		}
	}
}

// backoff returns min(base * 2^attempt, max).
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
