package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/agriplan/internal/config"
	"github.com/iliyamo/agriplan/internal/model"
	"github.com/iliyamo/agriplan/internal/queue"
	"github.com/iliyamo/agriplan/internal/repository"
	"github.com/iliyamo/agriplan/internal/testutil"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:         "test-secret",
		TokenTTL:          24 * time.Hour,
		BcryptCost:        4,
		DefaultDailyLimit: 10,
	}
}

type fixture struct {
	users *repository.UserRepo
	auth  *AuthService
	quota *QuotaController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := repository.NewUserRepo(testutil.OpenDB(t))
	auth := NewAuthService(testConfig(), users, nil)
	auth.Now = func() time.Time { return testNow }
	return &fixture{users: users, auth: auth, quota: NewQuotaController(users, nil)}
}

// approvedUser registers username and approves it, returning its identity.
func (f *fixture) approvedUser(t *testing.T, username string) model.Identity {
	t.Helper()
	u, err := f.auth.Register(context.Background(), username, "pw")
	require.NoError(t, err)
	require.NoError(t, f.quota.SetStatus(context.Background(), u.ID, model.StatusApproved))
	return model.Identity{ID: u.ID, Role: u.Role, Username: u.Username}
}

func (f *fixture) usage(t *testing.T, id uint64) int {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.UsageDaily
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AnalysisCompletedEvent
}

func (p *recordingPublisher) PublishAnalysisCompleted(_ context.Context, ev queue.AnalysisCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []queue.AnalysisCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.AnalysisCompletedEvent(nil), p.events...)
}

type memoryCache struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{docs: map[string][]byte{}} }

func (c *memoryCache) Get(_ context.Context, digest string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[digest]
	return doc, ok, nil
}

func (c *memoryCache) Set(_ context.Context, digest string, doc []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[digest] = append([]byte(nil), doc...)
	return nil
}
