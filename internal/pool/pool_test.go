package pool

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mastuka/tg-tool-bot/internal/config"
	"github.com/mastuka/tg-tool-bot/internal/model"
	"github.com/mastuka/tg-tool-bot/internal/protocol"
	"github.com/mastuka/tg-tool-bot/internal/protocol/inproc"
	"github.com/mastuka/tg-tool-bot/internal/repository"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		DailyLimit:          45,
		ErrorThreshold:      5,
		AutoReconnect:       true,
		ReconnectBaseDelay:  5 * time.Millisecond,
		ReconnectMaxDelay:   20 * time.Millisecond,
		ReconnectMaxRetries: 5,
		CheckInterval:       10 * time.Millisecond,
	}
}

func newTestPool(t *testing.T, net *inproc.Network) (*Pool, *repository.AccountRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.ForwardingRule{},
		&model.ForwardedMessage{},
		&model.ForwardingError{},
	))

	repo := repository.NewAccountRepository(db)
	p := New(testPoolConfig(), config.TelegramConfig{
		Driver:         "inproc",
		SessionsPath:   t.TempDir(),
		ConnectTimeout: time.Second,
	}, repo, net.Dialer(), nil)
	t.Cleanup(p.Close)
	return p, repo
}

func TestRegisterValidation(t *testing.T) {
	net := inproc.NewNetwork()
	p, _ := newTestPool(t, net)
	ctx := context.Background()

	assert.ErrorIs(t, p.Register(ctx, "not-a-phone", 12345, "hash", ""), ErrInvalidPhone)
	assert.ErrorIs(t, p.Register(ctx, "+0123456789", 12345, "hash", ""), ErrInvalidPhone)
	assert.ErrorIs(t, p.Register(ctx, "+15550000001", 0, "", ""), ErrMissingCredentials)
}

func TestRegisterAndCompleteAuth(t *testing.T) {
	net := inproc.NewNetwork()
	net.AddAccount("+10000000001", protocol.User{ID: 7, Username: "alice"}, "12345", "")
	p, repo := newTestPool(t, net)
	ctx := context.Background()

	require.NoError(t, p.Register(ctx, "+10000000001", 12345, "hash", ""))

	acc, err := repo.GetByPhone("+10000000001")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, model.StatusPendingCode, acc.Status)

	// duplicate registration is rejected
	assert.ErrorIs(t, p.Register(ctx, "+10000000001", 12345, "hash", ""), ErrDuplicateAccount)

	// wrong code fails, pending auth survives
	_, err = p.CompleteAuth(ctx, "+10000000001", "99999", "")
	assert.ErrorIs(t, err, protocol.ErrCodeInvalid)

	got, err := p.CompleteAuth(ctx, "+10000000001", "12345", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "alice", got.Username)

	client, ok := p.Client("+10000000001")
	require.True(t, ok)
	assert.True(t, client.IsConnected())
}

func TestCompleteAuthTwoStep(t *testing.T) {
	net := inproc.NewNetwork()
	net.AddAccount("+10000000002", protocol.User{ID: 8, Username: "bob"}, "12345", "hunter2")
	p, repo := newTestPool(t, net)
	ctx := context.Background()

	require.NoError(t, p.Register(ctx, "+10000000002", 12345, "hash", ""))

	// the correct code alone moves the account to pending_2fa
	_, err := p.CompleteAuth(ctx, "+10000000002", "12345", "")
	assert.ErrorIs(t, err, protocol.ErrPasswordNeeded)

	acc, err := repo.GetByPhone("+10000000002")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending2FA, acc.Status)

	_, err = p.CompleteAuth(ctx, "+10000000002", "", "wrong")
	assert.ErrorIs(t, err, protocol.ErrPasswordInvalid)

	got, err := p.CompleteAuth(ctx, "+10000000002", "", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
}

func TestRegisterAlreadyAuthorized(t *testing.T) {
	net := inproc.NewNetwork()
	net.AddAccount("+10000000003", protocol.User{ID: 9}, "12345", "")
	net.Authorize("+10000000003")
	p, repo := newTestPool(t, net)

	err := p.Register(context.Background(), "+10000000003", 12345, "hash", "")
	assert.ErrorIs(t, err, ErrAlreadyAuthorized)

	// the pending row was rolled back
	acc, err2 := repo.GetByPhone("+10000000003")
	require.NoError(t, err2)
	assert.Nil(t, acc)
}

func TestCompleteAuthWithoutRegister(t *testing.T) {
	net := inproc.NewNetwork()
	p, _ := newTestPool(t, net)

	_, err := p.CompleteAuth(context.Background(), "+10000000004", "12345", "")
	assert.ErrorIs(t, err, ErrNoPendingAuth)
}

func seedActive(t *testing.T, net *inproc.Network, p *Pool, repo *repository.AccountRepository, phone string) {
	t.Helper()
	net.AddAccount(phone, protocol.User{ID: time.Now().UnixNano()}, "12345", "")
	net.Authorize(phone)
	acc := &model.Account{
		Phone:         phone,
		APIID:         12345,
		APIHash:       "hash",
		Status:        model.StatusOffline,
		LastResetDate: time.Now().Format("2006-01-02"),
	}
	require.NoError(t, repo.Create(acc))
	require.NoError(t, p.Connect(context.Background(), phone))
}

func TestConnectIsIdempotent(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000005")

	first, ok := p.Client("+10000000005")
	require.True(t, ok)

	require.NoError(t, p.Connect(context.Background(), "+10000000005"))
	second, ok := p.Client("+10000000005")
	require.True(t, ok)
	assert.Same(t, first, second)
}

func TestDisconnectReleasesHandle(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000006")

	require.NoError(t, p.Disconnect("+10000000006"))

	_, ok := p.Client("+10000000006")
	assert.False(t, ok)

	acc, err := repo.GetByPhone("+10000000006")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, acc.Status)
}

func TestSupervisorReconnectsAfterDrop(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	phone := "+10000000007"
	seedActive(t, net, p, repo, phone)

	net.Drop(phone)
	client, ok := p.Client(phone)
	require.True(t, ok)
	require.False(t, client.IsConnected())

	p.TriggerReconnect(phone)

	assert.Eventually(t, func() bool {
		c, ok := p.Client(phone)
		return ok && c.IsConnected()
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionSweepRevivesDroppedHandle(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000008")

	// no manual trigger: the periodic sweep must notice the dead handle
	net.Drop("+10000000008")

	assert.Eventually(t, func() bool {
		c, ok := p.Client("+10000000008")
		return ok && c.IsConnected()
	}, time.Second, 10*time.Millisecond)
}

func TestConnectRefreshesIdentity(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	net.AddAccount("+10000000009", protocol.User{ID: 42, Username: "svc"}, "12345", "")
	net.Authorize("+10000000009")
	require.NoError(t, repo.Create(&model.Account{
		Phone:         "+10000000009",
		APIID:         12345,
		APIHash:       "hash",
		Status:        model.StatusOffline,
		LastResetDate: time.Now().Format("2006-01-02"),
	}))

	require.NoError(t, p.Connect(context.Background(), "+10000000009"))

	acc, err := repo.GetByPhone("+10000000009")
	require.NoError(t, err)
	assert.Equal(t, int64(42), acc.UserID)
	assert.Equal(t, "svc", acc.Username)
}

func TestGetAvailablePrefersLongestIdle(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000011")
	seedActive(t, net, p, repo, "+10000000012")

	now := time.Now()
	for phone, idle := range map[string]time.Duration{
		"+10000000011": 2 * time.Hour,
		"+10000000012": 30 * time.Minute,
	} {
		acc, err := repo.GetByPhone(phone)
		require.NoError(t, err)
		acc.LastActivity = now.Add(-idle)
		require.NoError(t, repo.Save(acc))
	}

	acc, err := p.GetAvailable("test")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "+10000000011", acc.Phone)
	assert.Equal(t, 1, acc.DailyCount)

	// the selected account is now the most recently used, so the other wins
	acc, err = p.GetAvailable("test")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "+10000000012", acc.Phone)
}

func TestGetAvailableHonorsDailyLimit(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000013")

	acc, err := repo.GetByPhone("+10000000013")
	require.NoError(t, err)
	acc.DailyCount = testPoolConfig().DailyLimit
	require.NoError(t, repo.Save(acc))

	got, err := p.GetAvailable("test")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAvailableResetsCounterOncePerDay(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000014")

	acc, err := repo.GetByPhone("+10000000014")
	require.NoError(t, err)
	acc.DailyCount = 44
	acc.LastResetDate = "2020-01-01"
	require.NoError(t, repo.Save(acc))

	got, err := p.GetAvailable("test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.DailyCount)
	assert.Equal(t, time.Now().Format("2006-01-02"), got.LastResetDate)

	// same day again: no second reset, counter keeps climbing
	got, err = p.GetAvailable("test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.DailyCount)
}

func TestMarkErrorDemotesToLimited(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000015")

	for i := 0; i < testPoolConfig().ErrorThreshold; i++ {
		require.NoError(t, p.MarkError("+10000000015", "send failed"))
	}

	acc, err := repo.GetByPhone("+10000000015")
	require.NoError(t, err)
	assert.Equal(t, model.StatusLimited, acc.Status)

	// limited accounts are never selectable
	got, err := p.GetAvailable("test")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkFloodWaitRestoresActive(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000016")

	require.NoError(t, p.MarkFloodWait("+10000000016", 20*time.Millisecond))

	acc, err := repo.GetByPhone("+10000000016")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFloodWait, acc.Status)

	assert.Eventually(t, func() bool {
		acc, err := repo.GetByPhone("+10000000016")
		return err == nil && acc.Status == model.StatusActive
	}, time.Second, 10*time.Millisecond)
}

func TestMarkFloodWaitAfterClose(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000020")

	p.Close()

	require.NoError(t, p.MarkFloodWait("+10000000020", time.Millisecond))

	// no restore goroutine runs after shutdown; the account stays parked
	time.Sleep(20 * time.Millisecond)
	acc, err := repo.GetByPhone("+10000000020")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFloodWait, acc.Status)
}

func TestRemoveDeletesRowAndSession(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000017")

	require.NoError(t, p.Remove("+10000000017", true))

	acc, err := repo.GetByPhone("+10000000017")
	require.NoError(t, err)
	assert.Nil(t, acc)
	_, ok := p.Client("+10000000017")
	assert.False(t, ok)
	assert.Contains(t, net.RemovedSess, "+10000000017")

	assert.ErrorIs(t, p.Remove("+10000000017", false), ErrAccountNotFound)
}

func TestStatusReport(t *testing.T) {
	net := inproc.NewNetwork()
	p, repo := newTestPool(t, net)
	seedActive(t, net, p, repo, "+10000000018")
	seedActive(t, net, p, repo, "+10000000019")
	require.NoError(t, p.Disconnect("+10000000019"))

	report, err := p.StatusReport()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.ByStatus[string(model.StatusActive)])
	assert.Equal(t, 1, report.ByStatus[string(model.StatusOffline)])
	assert.Len(t, report.Accounts, 2)
}

func TestBackoffCapsAtMax(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, base, backoff(base, max, 0))
	assert.Equal(t, 400*time.Millisecond, backoff(base, max, 2))
	assert.Equal(t, max, backoff(base, max, 10))
	assert.Equal(t, max, backoff(base, max, 60)) // no overflow at large attempts
}
