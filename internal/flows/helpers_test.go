package flows

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 30 * 24 * time.Hour
	testWindow     = 300 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock *fakeClock
	mgr   *jwt.Manager
	store *session.Store
	guard *session.BotGuard
	mr    *miniredis.Miniredis

	edPub  ed25519.PublicKey
	edPriv ed25519.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Unix(1_760_000_000, 0)}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	store := session.NewStore(rdb, "", time.Second)
	return &harness{
		clock:  clock,
		mgr:    newEdManagerWithKeys(t, clock, pub, priv),
		store:  store,
		guard:  session.NewBotGuard(store),
		mr:     mr,
		edPub:  pub,
		edPriv: priv,
	}
}

func newEdManager(t *testing.T, clock *fakeClock) *jwt.Manager {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return newEdManagerWithKeys(t, clock, pub, priv)
}

func newEdManagerWithKeys(t *testing.T, clock *fakeClock, pub ed25519.PublicKey, priv ed25519.PrivateKey) *jwt.Manager {
	t.Helper()
	mgr, err := jwt.NewManager(jwt.Config{
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	}, jwt.WithClock(clock.Now))
	require.NoError(t, err)
	return mgr
}

func (h *harness) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Signer:      h.mgr,
		Sessions:    h.store,
		Blacklist:   h.store,
		Now:         h.clock.Now,
		GraceWindow: testWindow,
		RefreshTTL:  testRefreshTTL,
	}
}

func (h *harness) loginDeps() LoginDeps {
	return LoginDeps{Signer: h.mgr, Sessions: h.store, RefreshTTL: testRefreshTTL}
}

func (h *harness) logoutDeps() LogoutDeps {
	return LogoutDeps{Signer: h.mgr, Sessions: h.store, Blacklist: h.store, AccessTTL: testAccessTTL}
}

func (h *harness) validateDeps() ValidateDeps {
	return ValidateDeps{Signer: h.mgr, Sessions: h.store, Blacklist: h.store}
}

func (h *harness) botDeps() BotDeps {
	return BotDeps{Signer: h.mgr, Guard: h.guard, BotAccessTTL: 24 * time.Hour}
}

func (h *harness) login(t *testing.T, id string) *jwt.IssuedPair {
	t.Helper()
	res := RunLogin(context.Background(), jwt.Subject{ID: id, Email: id + "@example.com", Roles: jwt.Roles{"user"}}, h.loginDeps())
	require.NoError(t, res.Err)
	return res.Pair
}

func (h *harness) sessionExists(t *testing.T, subject, tokenID string) bool {
	t.Helper()
	ok, err := h.store.Exists(context.Background(), string(jwt.ClientUser), subject, tokenID)
	require.NoError(t, err)
	return ok
}
