package engine

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
)

// handleMessage processes one inbound message on a subscribed source. Each
// destination is attempted independently; a failure on one never aborts the
// rest. The resume checkpoint advances for every message that passed the
// filter, whatever the per-destination outcomes, so a restart reprocesses at
// most the in-flight message.
func (e *Engine) handleMessage(s *session, msg protocol.Message) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	client := s.client
	destinations := s.destinations
	keywords := s.keywords
	s.mu.Unlock()

	if !matchKeywords(msg.Text, keywords) {
		return
	}

	start := time.Now()
	var delivered int64

	for i, dest := range destinations {
		// pacing between destinations, never before the first
		if i > 0 && e.cfg.DestinationDelay > 0 {
			if !e.sleep(e.cfg.DestinationDelay) {
				return
			}
		}

		if !client.IsConnected() {
			if err := e.pool.Reconnect(e.rootCtx, s.phone); err != nil {
				e.recordError(s, "connection", err)
				continue
			}
			fresh, ok := e.pool.Client(s.phone)
			if !ok {
				e.recordError(s, "connection", pool.ErrNotConnected)
				continue
			}
			client = fresh
			s.mu.Lock()
			s.client = fresh
			s.mu.Unlock()
		}

		destMsgID, err := client.ForwardMessage(e.rootCtx, dest, msg.ID, s.sourceID)
		if err != nil {
			if wait, ok := protocol.AsFloodWait(err); ok {
				e.recordError(s, "flood_wait", err)
				if e.metrics != nil {
					e.metrics.FloodWaits.Inc()
				}
				if wait > e.cfg.MaxFloodWait {
					wait = e.cfg.MaxFloodWait
				}
				if !e.sleep(wait) {
					return
				}
				continue
			}
			if protocol.IsPermission(err) {
				e.recordError(s, "permission", err)
				continue
			}
			e.recordError(s, "forward", err)
			continue
		}

		rec := &model.ForwardedMessage{
			RuleID:        s.ruleID,
			AccountPhone:  s.phone,
			SourceID:      s.sourceID,
			SourceMsgID:   msg.ID,
			DestinationID: dest,
			DestMsgID:     destMsgID,
			Text:          excerpt(msg.Text, e.cfg.ExcerptLength),
			ForwardedAt:   time.Now(),
		}
		if err := e.rules.LogForwarded(rec); err != nil {
			logrus.Errorf("Failed to log forwarded message for rule %d: %v", s.ruleID, err)
		}
		delivered++
		if e.metrics != nil {
			e.metrics.ForwardSuccesses.Inc()
		}
	}

	s.mu.Lock()
	s.forwarded += delivered
	s.mu.Unlock()

	if err := e.rules.AdvanceCheckpoint(s.ruleID, msg.ID, delivered); err != nil {
		logrus.Errorf("Failed to advance checkpoint for rule %d: %v", s.ruleID, err)
	}

	if e.metrics != nil {
		e.metrics.ForwardDuration.Observe(time.Since(start).Seconds())
	}
}

// recordError appends an audit record and counts the failure.
func (e *Engine) recordError(s *session, errType string, cause error) {
	logrus.Warnf("Rule %d forwarding error (%s): %v", s.ruleID, errType, cause)
	if err := e.rules.LogError(s.ruleID, s.phone, errType, cause.Error()); err != nil {
		logrus.Errorf("Failed to log forwarding error for rule %d: %v", s.ruleID, err)
	}
	if e.metrics != nil {
		e.metrics.ForwardFailures.Inc()
	}
}

// sleep waits for d unless the engine shuts down first.
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-e.rootCtx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// matchKeywords applies the case-insensitive any-match filter. An empty
// keyword set forwards everything.
func matchKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// excerpt truncates text to at most n runes for the audit log.
func excerpt(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
