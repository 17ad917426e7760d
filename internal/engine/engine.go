// Package engine runs forwarding rules: it subscribes to source
// conversations on accounts borrowed from the pool and fans new messages out
// to the rule's destinations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/config"
	"github.com/mastuka/tg-tool-bot/internal/metrics"
	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/pool"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
	"github.com/mastuka/tg-tool-bot/internal/repository"
)

// Rule-level errors surfaced to the presentation layer.
var (
	ErrRuleNotFound   = errors.New("forwarding rule not found")
	ErrNoDestinations = errors.New("rule needs at least one destination")
	ErrUnknownAccount = errors.New("rule references an unknown account")
)

// Engine owns the table of live forwarding sessions, keyed by account+rule.
type Engine struct {
	cfg      config.ForwardingConfig
	pool     *pool.Pool
	rules    *repository.RuleRepository
	accounts *repository.AccountRepository
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*session

	rootCtx context.Context
	cancel  context.CancelFunc
}

// session is the in-memory state of one activated rule. Only the event
// handler mutates forwarded; the running flag is the authoritative gate that
// stops stale subscriptions.
type session struct {
	mu        sync.Mutex
	running   bool
	forwarded int64
	client    protocol.Client
	sub       protocol.Subscription

	ruleID       uint
	phone        string
	sourceID     int64
	destinations []int64
	keywords     []string
}

func sessionKey(phone string, ruleID uint) string {
	return fmt.Sprintf("%s_%d", phone, ruleID)
}

// New creates the engine.
func New(cfg config.ForwardingConfig, p *pool.Pool, rules *repository.RuleRepository, accounts *repository.AccountRepository, m *metrics.Metrics) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		pool:     p,
		rules:    rules,
		accounts: accounts,
		metrics:  m,
		sessions: make(map[string]*session),
		rootCtx:  ctx,
		cancel:   cancel,
	}
}

// Create validates and persists a new rule in stopped status.
func (e *Engine) Create(req model.CreateRuleRequest) (*model.ForwardingRule, error) {
	acc, err := e.accounts.GetByPhone(req.AccountPhone)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrUnknownAccount
	}
	if len(req.DestinationIDs) == 0 {
		return nil, ErrNoDestinations
	}

	rule := &model.ForwardingRule{
		AccountPhone: req.AccountPhone,
		SourceID:     req.SourceID,
		SourceName:   req.SourceName,
		Status:       model.RuleStopped,
	}
	if err := rule.SetDestinations(req.DestinationIDs); err != nil {
		return nil, fmt.Errorf("failed to encode destinations: %w", err)
	}
	if len(rule.Destinations()) == 0 {
		return nil, ErrNoDestinations
	}
	if err := rule.SetKeywords(req.Keywords); err != nil {
		return nil, fmt.Errorf("failed to encode keywords: %w", err)
	}

	if err := e.rules.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Start activates a rule: it ensures the account has a live authorized
// handle, verifies the source is reachable, persists running status and
// registers the source subscription. Starting an already-running rule is an
// idempotent success.
func (e *Engine) Start(ctx context.Context, ruleID uint) error {
	rule, err := e.rules.Get(ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRuleNotFound
	}

	key := sessionKey(rule.AccountPhone, rule.ID)
	sess := &session{
		ruleID:       rule.ID,
		phone:        rule.AccountPhone,
		sourceID:     rule.SourceID,
		destinations: rule.Destinations(),
		keywords:     rule.KeywordList(),
	}

	// reserve the key before any network round trip; concurrent starts for
	// the same rule must collapse into one subscription
	e.mu.Lock()
	if _, ok := e.sessions[key]; ok {
		e.mu.Unlock()
		return nil
	}
	e.sessions[key] = sess
	e.mu.Unlock()

	abort := func() {
		e.mu.Lock()
		if e.sessions[key] == sess {
			delete(e.sessions, key)
		}
		e.mu.Unlock()
	}

	client, ok := e.pool.Client(rule.AccountPhone)
	if !ok || !client.IsConnected() {
		if err := e.pool.Connect(ctx, rule.AccountPhone); err != nil {
			abort()
			return e.failActivation(rule, "connection", err)
		}
		client, ok = e.pool.Client(rule.AccountPhone)
		if !ok {
			abort()
			return e.failActivation(rule, "connection", pool.ErrNotConnected)
		}
	}

	if _, err := client.GetEntity(ctx, rule.SourceID); err != nil {
		abort()
		return e.failActivation(rule, "source_unreachable", err)
	}
	// resolvable is not enough, the source history must be readable too
	if _, err := client.GetMessages(ctx, rule.SourceID, 1); err != nil {
		abort()
		return e.failActivation(rule, "source_unreachable", err)
	}

	if err := e.rules.UpdateStatus(rule.ID, model.RuleRunning); err != nil {
		abort()
		return err
	}

	sub := client.OnNewMessage(rule.SourceID, func(msg protocol.Message) {
		e.handleMessage(sess, msg)
	})
	sess.mu.Lock()
	sess.client = client
	sess.sub = sub
	sess.mu.Unlock()

	e.mu.Lock()
	if e.sessions[key] != sess {
		// stopped or closed while we were activating
		e.mu.Unlock()
		sub.Cancel()
		return nil
	}
	sess.mu.Lock()
	sess.running = true
	sess.mu.Unlock()
	count := len(e.sessions)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RunningRules.Set(float64(count))
	}

	logrus.Infof("Rule %d started: %s -> %v (keywords %v)",
		rule.ID, rule.SourceName, sess.destinations, sess.keywords)
	return nil
}

// Stop deactivates a rule. The in-memory flag flips first so a subscription
// firing before physical cancellation completes is silently dropped;
// cancelling the subscription at the source is the primary mechanism.
func (e *Engine) Stop(ruleID uint) error {
	rule, err := e.rules.Get(ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRuleNotFound
	}

	key := sessionKey(rule.AccountPhone, rule.ID)
	e.mu.Lock()
	sess := e.sessions[key]
	delete(e.sessions, key)
	count := len(e.sessions)
	e.mu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		sess.running = false
		sub := sess.sub
		sess.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
	}

	if e.metrics != nil {
		e.metrics.RunningRules.Set(float64(count))
	}

	if err := e.rules.UpdateStatus(rule.ID, model.RuleStopped); err != nil {
		return err
	}
	logrus.Infof("Rule %d stopped", rule.ID)
	return nil
}

// Delete stops the rule first (idempotent when already stopped), then
// removes the persisted row. The audit logs are retained.
func (e *Engine) Delete(ruleID uint) error {
	if err := e.Stop(ruleID); err != nil {
		return err
	}
	return e.rules.Delete(ruleID)
}

// IsRunning reports whether a live session exists for the rule.
func (e *Engine) IsRunning(ruleID uint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sess := range e.sessions {
		if sess.ruleID == ruleID {
			return true
		}
	}
	return false
}

// SessionForwarded returns how many messages the rule's live session has
// delivered since it started; zero when the rule is not running. The
// persisted counter survives restarts, this one shows current-session work.
func (e *Engine) SessionForwarded(ruleID uint) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sess := range e.sessions {
		if sess.ruleID == ruleID {
			sess.mu.Lock()
			n := sess.forwarded
			sess.mu.Unlock()
			return n
		}
	}
	return 0
}

// RecentMessages fetches the newest messages from the rule's source using
// the owning account's handle. The rule does not have to be running; this is
// the operator's probe that the source is alive and readable.
func (e *Engine) RecentMessages(ctx context.Context, ruleID uint, limit int) ([]protocol.Message, error) {
	rule, err := e.rules.Get(ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}

	client, ok := e.pool.Client(rule.AccountPhone)
	if !ok || !client.IsConnected() {
		if err := e.pool.Connect(ctx, rule.AccountPhone); err != nil {
			return nil, err
		}
		client, ok = e.pool.Client(rule.AccountPhone)
		if !ok {
			return nil, pool.ErrNotConnected
		}
	}

	return client.GetMessages(ctx, rule.SourceID, limit)
}

// RestartActiveRules re-activates every rule persisted as running. An
// activation failure demotes that rule to error and never aborts startup.
func (e *Engine) RestartActiveRules(ctx context.Context) {
	rules, err := e.rules.ListByStatus(model.RuleRunning)
	if err != nil {
		logrus.Errorf("Failed to list running rules on boot: %v", err)
		return
	}
	for _, rule := range rules {
		if err := e.Start(ctx, rule.ID); err != nil {
			logrus.Errorf("Failed to re-activate rule %d: %v", rule.ID, err)
		}
	}
	if len(rules) > 0 {
		logrus.Infof("Re-activation pass finished for %d persisted rules", len(rules))
	}
}

// Statistics aggregates the audit log; ruleID 0 covers all rules.
func (e *Engine) Statistics(ruleID uint) (*model.RuleStatistics, error) {
	return e.rules.Statistics(ruleID)
}

// Close cancels every live subscription without touching persisted statuses,
// so a restart re-activates the same rules.
func (e *Engine) Close() {
	e.cancel()

	e.mu.Lock()
	sessions := e.sessions
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.running = false
		sub := sess.sub
		sess.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
	}

	if e.metrics != nil {
		e.metrics.RunningRules.Set(0)
	}
	logrus.Info("Forwarding engine closed")
}

// failActivation persists the error status plus an audit record and returns
// the wrapped cause.
func (e *Engine) failActivation(rule *model.ForwardingRule, errType string, cause error) error {
	if err := e.rules.UpdateStatus(rule.ID, model.RuleError); err != nil {
		logrus.Errorf("Failed to persist error status for rule %d: %v", rule.ID, err)
	}
	if err := e.rules.LogError(rule.ID, rule.AccountPhone, errType, cause.Error()); err != nil {
		logrus.Errorf("Failed to log activation error for rule %d: %v", rule.ID, err)
	}
	return fmt.Errorf("rule %d activation failed (%s): %w", rule.ID, errType, cause)
}
