// Package pool owns the set of managed accounts, their live protocol
// handles and the reconnect supervisors that keep those handles alive.
package pool

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/config"
	"github.com/mastuka/tg-tool-bot/internal/metrics"
	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
	"github.com/mastuka/tg-tool-bot/internal/repository"
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{9,14}$`)

// Pool manages account registration, connection lifecycle and selection.
// The persisted status column is authoritative; the in-memory maps only hold
// live handles and in-flight registrations.
type Pool struct {
	cfg     config.PoolConfig
	tgCfg   config.TelegramConfig
	repo    *repository.AccountRepository
	dialer  protocol.Dialer
	metrics *metrics.Metrics

	// coarse lock for the membership maps; per-account work happens under
	// the managed account's own mutex
	mu       sync.Mutex
	accounts map[string]*managedAccount
	pending  map[string]*pendingAuth
	closed   bool

	cron    *cron.Cron
	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// managedAccount is one account with a live (or recovering) handle.
type managedAccount struct {
	phone string

	// serializes all state-mutating operations on this account
	mu     sync.Mutex
	client protocol.Client

	// buffered trigger for the reconnect supervisor
	reconnect chan struct{}
	cancel    context.CancelFunc
}

// pendingAuth is a registration waiting for the login code or 2FA password.
type pendingAuth struct {
	client   protocol.Client
	codeHash string
}

// New creates the pool and starts its midnight daily-counter reset job.
func New(cfg config.PoolConfig, tgCfg config.TelegramConfig, repo *repository.AccountRepository, dialer protocol.Dialer, m *metrics.Metrics) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:      cfg,
		tgCfg:    tgCfg,
		repo:     repo,
		dialer:   dialer,
		metrics:  m,
		accounts: make(map[string]*managedAccount),
		pending:  make(map[string]*pendingAuth),
		cron:     cron.New(cron.WithSeconds()),
		rootCtx:  ctx,
		cancel:   cancel,
	}

	if _, err := p.cron.AddFunc("0 0 0 * * *", p.resetDailyCounters); err != nil {
		logrus.Errorf("Failed to schedule daily counter reset: %v", err)
	}
	p.cron.Start()

	if cfg.CheckInterval > 0 {
		p.wg.Add(1)
		go p.checkConnections(cfg.CheckInterval)
	}

	return p
}

// Register validates the identity, persists a pending account and asks the
// network to deliver a login code. The registration is completed with
// CompleteAuth.
func (p *Pool) Register(ctx context.Context, phone string, apiID int, apiHash, proxy string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	if apiID == 0 || apiHash == "" {
		return ErrMissingCredentials
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	existing, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateAccount
	}

	acc := &model.Account{
		Phone:         phone,
		APIID:         apiID,
		APIHash:       apiHash,
		Proxy:         proxy,
		Status:        model.StatusPendingCode,
		LastResetDate: today(),
	}
	if err := p.repo.Create(acc); err != nil {
		return err
	}

	client, err := p.dial(ctx, acc)
	if err != nil {
		_ = p.repo.Delete(phone)
		return fmt.Errorf("connection failed: %w", err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		_ = client.Disconnect()
		_ = p.repo.Delete(phone)
		return fmt.Errorf("connection failed: %w", err)
	}
	if authorized {
		_ = client.Disconnect()
		_ = p.repo.Delete(phone)
		return ErrAlreadyAuthorized
	}

	codeHash, err := client.SendCodeRequest(ctx, phone)
	if err != nil {
		_ = client.Disconnect()
		_ = p.repo.Delete(phone)
		if _, ok := protocol.AsFloodWait(err); ok {
			return err
		}
		return fmt.Errorf("failed to request login code: %w", err)
	}

	p.mu.Lock()
	p.pending[phone] = &pendingAuth{client: client, codeHash: codeHash}
	p.mu.Unlock()

	logrus.Infof("Login code requested for %s", phone)
	return nil
}

// CompleteAuth resumes a pending registration. When the account has two-step
// verification enabled the first call (code only) returns
// protocol.ErrPasswordNeeded and moves the account to pending_2fa; the caller
// then retries with the password.
func (p *Pool) CompleteAuth(ctx context.Context, phone, code, password string) (*model.Account, error) {
	p.mu.Lock()
	pend, ok := p.pending[phone]
	p.mu.Unlock()
	if !ok {
		return nil, ErrNoPendingAuth
	}

	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}

	var user *protocol.User
	if password != "" {
		user, err = pend.client.SignInWithPassword(ctx, password)
	} else {
		user, err = pend.client.SignIn(ctx, phone, pend.codeHash, code)
	}
	if err != nil {
		if err == protocol.ErrPasswordNeeded {
			acc.Status = model.StatusPending2FA
			if saveErr := p.repo.Save(acc); saveErr != nil {
				return nil, saveErr
			}
			return nil, protocol.ErrPasswordNeeded
		}
		if _, ok := protocol.AsFloodWait(err); ok {
			return nil, err
		}
		return nil, err
	}

	acc.Status = model.StatusActive
	acc.UserID = user.ID
	acc.Username = user.Username
	acc.ErrorCount = 0
	acc.LastError = ""
	acc.LastActivity = time.Now()
	if err := p.repo.Save(acc); err != nil {
		return nil, err
	}

	p.mu.Lock()
	delete(p.pending, phone)
	p.adopt(phone, pend.client)
	p.mu.Unlock()

	logrus.Infof("Account %s authorized as %s (%d)", phone, user.Username, user.ID)
	return acc, nil
}

// Connect brings an account online. It is a no-op success when the account
// already has a connected handle.
func (p *Pool) Connect(ctx context.Context, phone string) error {
	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}
	if acc.Status == model.StatusBanned {
		return ErrAccountBanned
	}

	p.mu.Lock()
	ma := p.accounts[phone]
	p.mu.Unlock()

	if ma != nil {
		ma.mu.Lock()
		connected := ma.client != nil && ma.client.IsConnected()
		ma.mu.Unlock()
		if connected {
			return nil
		}
		return p.reattach(ctx, ma, acc)
	}

	client, err := p.openAuthorized(ctx, acc)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.adopt(phone, client)
	p.mu.Unlock()

	return p.markActive(acc)
}

// Disconnect takes an account offline: the supervisor is cancelled, the
// handle released and the status persisted.
func (p *Pool) Disconnect(phone string) error {
	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}

	p.mu.Lock()
	ma := p.accounts[phone]
	delete(p.accounts, phone)
	p.mu.Unlock()

	if ma != nil {
		p.release(ma)
	}

	return p.repo.UpdateStatus(phone, model.StatusOffline)
}

// Reconnect re-establishes the handle while keeping the supervisor alive.
func (p *Pool) Reconnect(ctx context.Context, phone string) error {
	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}
	if acc.Status == model.StatusBanned {
		return ErrAccountBanned
	}

	p.mu.Lock()
	ma := p.accounts[phone]
	p.mu.Unlock()

	if ma == nil {
		return p.Connect(ctx, phone)
	}
	return p.reattach(ctx, ma, acc)
}

// Remove deletes an account: supervisor cancelled, handle released, row
// removed, session artifact optionally deleted.
func (p *Pool) Remove(phone string, deleteSession bool) error {
	acc, err := p.repo.GetByPhone(phone)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrAccountNotFound
	}

	p.mu.Lock()
	ma := p.accounts[phone]
	delete(p.accounts, phone)
	pend := p.pending[phone]
	delete(p.pending, phone)
	p.mu.Unlock()

	if ma != nil {
		p.release(ma)
	}
	if pend != nil {
		_ = pend.client.Disconnect()
	}

	if err := p.repo.Delete(phone); err != nil {
		return err
	}

	if deleteSession {
		if err := p.dialer.RemoveSession(phone); err != nil {
			logrus.Warnf("Failed to remove session artifact for %s: %v", phone, err)
		}
	}

	logrus.Infof("Account %s removed", phone)
	return nil
}

// Client returns the live handle for an account, if one exists. The caller
// borrows the handle and must never close it; signal the pool instead.
func (p *Pool) Client(phone string) (protocol.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ma := p.accounts[phone]
	if ma == nil {
		return nil, false
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	if ma.client == nil {
		return nil, false
	}
	return ma.client, true
}

// TriggerReconnect wakes the account's supervisor after a disconnect was
// observed. Safe to call from any goroutine, including borrowers.
func (p *Pool) TriggerReconnect(phone string) {
	p.mu.Lock()
	ma := p.accounts[phone]
	p.mu.Unlock()
	if ma == nil || ma.reconnect == nil {
		return
	}
	select {
	case ma.reconnect <- struct{}{}:
	default:
	}
}

// Close shuts the pool down: the reset job and every supervisor are
// cancelled and joined, then every known handle gets a best-effort
// disconnect. No handle is left silently orphaned.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	accounts := make([]*managedAccount, 0, len(p.accounts))
	for _, ma := range p.accounts {
		accounts = append(accounts, ma)
	}
	pending := make([]*pendingAuth, 0, len(p.pending))
	for _, pend := range p.pending {
		pending = append(pending, pend)
	}
	p.mu.Unlock()

	p.cancel()
	cronCtx := p.cron.Stop()
	<-cronCtx.Done()
	p.wg.Wait()

	for _, ma := range accounts {
		ma.mu.Lock()
		if ma.client != nil {
			if err := ma.client.Disconnect(); err != nil {
				logrus.Warnf("Failed to disconnect %s during shutdown: %v", ma.phone, err)
			}
			ma.client = nil
		}
		ma.mu.Unlock()
	}
	for _, pend := range pending {
		_ = pend.client.Disconnect()
	}

	logrus.Info("Account pool closed")
}

// adopt installs a connected client as a managed account and starts its
// supervisor. Caller holds p.mu.
func (p *Pool) adopt(phone string, client protocol.Client) {
	ma := &managedAccount{
		phone:     phone,
		client:    client,
		reconnect: make(chan struct{}, 1),
	}
	p.accounts[phone] = ma

	if p.cfg.AutoReconnect && !p.closed {
		ctx, cancel := context.WithCancel(p.rootCtx)
		ma.cancel = cancel
		p.wg.Add(1)
		go p.supervise(ctx, ma)
	}
}

// release cancels the supervisor and drops the handle.
func (p *Pool) release(ma *managedAccount) {
	if ma.cancel != nil {
		ma.cancel()
	}
	ma.mu.Lock()
	if ma.client != nil {
		if err := ma.client.Disconnect(); err != nil {
			logrus.Warnf("Failed to disconnect %s: %v", ma.phone, err)
		}
		ma.client = nil
	}
	ma.mu.Unlock()
}

// reattach swaps in a fresh handle for an existing managed account.
func (p *Pool) reattach(ctx context.Context, ma *managedAccount, acc *model.Account) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	if ma.client != nil {
		_ = ma.client.Disconnect()
		ma.client = nil
	}

	client, err := p.openAuthorized(ctx, acc)
	if err != nil {
		return err
	}
	ma.client = client
	return p.markActive(acc)
}

// openAuthorized dials, connects and verifies the session is authorized.
func (p *Pool) openAuthorized(ctx context.Context, acc *model.Account) (protocol.Client, error) {
	client, err := p.dial(ctx, acc)
	if err != nil {
		p.noteFailure(acc.Phone, err)
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		_ = client.Disconnect()
		p.noteFailure(acc.Phone, err)
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	if !authorized {
		_ = client.Disconnect()
		_ = p.repo.UpdateStatus(acc.Phone, model.StatusError)
		return nil, protocol.ErrNotAuthorized
	}

	// refresh the persisted identity while we hold a fresh handle; markActive
	// saves the row afterwards
	if user, err := client.GetSelf(ctx); err == nil {
		acc.UserID = user.ID
		acc.Username = user.Username
	}

	return client, nil
}

// dial opens and connects a raw client for the account.
func (p *Pool) dial(ctx context.Context, acc *model.Account) (protocol.Client, error) {
	dialCtx := ctx
	if p.tgCfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.tgCfg.ConnectTimeout)
		defer cancel()
	}

	client, err := p.dialer.Dial(dialCtx, protocol.DialOptions{
		Phone:       acc.Phone,
		APIID:       acc.APIID,
		APIHash:     acc.APIHash,
		SessionPath: filepath.Join(p.tgCfg.SessionsPath, acc.Phone),
		Proxy:       acc.Proxy,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Connect(dialCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// markActive persists the connected state, clearing the error counter.
func (p *Pool) markActive(acc *model.Account) error {
	acc.Status = model.StatusActive
	acc.ErrorCount = 0
	acc.LastError = ""
	return p.repo.Save(acc)
}

func today() string {
	return time.Now().Format("2006-01-02")
}
