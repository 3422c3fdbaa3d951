package flows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/internal/store"
	"github.com/MrEthical07/warden/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresSession(t *testing.T) {
	h := newHarness(t)
	res := RunLogin(context.Background(), jwt.Subject{ID: " u-1 "}, h.loginDeps())
	require.NoError(t, res.Err)
	require.True(t, res.Issued)

	assert.Equal(t, "u-1", res.Pair.AccessClaims.RegisteredClaims.Subject)
	assert.Equal(t, jwt.ClientUser, res.Pair.AccessClaims.Client)
	assert.Equal(t, int64(900), res.Pair.ExpiresIn)
	assert.True(t, h.sessionExists(t, "u-1", res.Pair.RefreshClaims.ID))

	key := h.store.Key("user", "u-1", res.Pair.RefreshClaims.ID)
	assert.Equal(t, testRefreshTTL, h.mr.TTL(key))
}

func TestLoginRejectsInvalidSubjects(t *testing.T) {
	h := newHarness(t)
	for _, s := range []jwt.Subject{
		{ID: ""},
		{ID: "   "},
		{ID: "b-1", Client: jwt.ClientBot},
		{ID: "x", Client: "service"},
		{ID: "a:b"},
		{ID: "u-1:*"},
	} {
		res := RunLogin(context.Background(), s, h.loginDeps())
		assert.ErrorIs(t, res.Err, ErrInvalidSubject, "subject %+v", s)
		assert.False(t, res.Issued)
	}
}

func TestLoginStoreFailureDiscardsPair(t *testing.T) {
	h := newHarness(t)
	h.mr.SetError("READONLY")

	res := RunLogin(context.Background(), jwt.Subject{ID: "u-1"}, h.loginDeps())
	assert.ErrorIs(t, res.Err, store.ErrUnavailable)
	assert.True(t, res.Issued)
	assert.Nil(t, res.Pair)
}

func TestLogoutDeletesSessionAndRevokesAccess(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "u-1")

	res := RunLogout(context.Background(), pair.RefreshToken, pair.AccessClaims.ID, h.logoutDeps())
	require.NoError(t, res.Err)
	assert.True(t, res.SessionDeleted)
	assert.False(t, res.RefreshInvalid)
	assert.Equal(t, "u-1", res.Subject)
	assert.Equal(t, pair.AccessClaims.ID, res.RevokedAccess)

	assert.False(t, h.sessionExists(t, "u-1", pair.RefreshClaims.ID))
	revoked, err := h.store.IsAccessRevoked(context.Background(), pair.AccessClaims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, testAccessTTL, h.mr.TTL("bl:access:"+pair.AccessClaims.ID))

	again := RunLogout(context.Background(), pair.RefreshToken, pair.AccessClaims.ID, h.logoutDeps())
	assert.NoError(t, again.Err)
}

func TestLogoutFallsBackToPairedAccessID(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "u-1")

	res := RunLogout(context.Background(), pair.RefreshToken, "", h.logoutDeps())
	require.NoError(t, res.Err)
	assert.Equal(t, pair.RefreshClaims.AccessID, res.RevokedAccess)

	v := RunValidateAccess(context.Background(), pair.AccessToken, h.validateDeps())
	assert.Equal(t, ValidateFailureRevoked, v.Failure)
}

func TestLogoutWithInvalidRefreshStillSucceeds(t *testing.T) {
	h := newHarness(t)
	res := RunLogout(context.Background(), "not-a-token", "jti-x", h.logoutDeps())
	require.NoError(t, res.Err)
	assert.True(t, res.RefreshInvalid)
	assert.False(t, res.SessionDeleted)
	assert.Equal(t, "jti-x", res.RevokedAccess)

	res = RunLogout(context.Background(), "not-a-token", "", h.logoutDeps())
	require.NoError(t, res.Err)
	assert.Empty(t, res.RevokedAccess)
}

func TestLogoutReportsStoreFailure(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "u-1")
	h.mr.SetError("LOADING")

	res := RunLogout(context.Background(), pair.RefreshToken, pair.AccessClaims.ID, h.logoutDeps())
	assert.ErrorIs(t, res.Err, store.ErrUnavailable)
	assert.False(t, res.SessionDeleted)
}

func TestIssueBotTokenReplacesPriorSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := RunIssueBotToken(ctx, "b-1", []string{"ingest"}, h.botDeps())
	require.NoError(t, first.Err)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.Equal(t, int64(86400), first.ExpiresIn)
	assert.Zero(t, first.Replaced)

	v := RunValidateAccess(ctx, first.AccessToken, h.validateDeps())
	require.Equal(t, ValidateFailureNone, v.Failure)
	assert.Equal(t, jwt.ClientBot, v.Claims.Client)
	assert.True(t, v.Claims.Roles.Has("ingest"))

	second := RunIssueBotToken(ctx, "b-1", nil, h.botDeps())
	require.NoError(t, second.Err)
	assert.Equal(t, 1, second.Replaced)
	assert.NotEqual(t, first.TokenID, second.TokenID)

	v = RunValidateAccess(ctx, first.AccessToken, h.validateDeps())
	assert.Equal(t, ValidateFailureSessionNotFound, v.Failure)
	v = RunValidateAccess(ctx, second.AccessToken, h.validateDeps())
	assert.Equal(t, ValidateFailureNone, v.Failure)

	n, err := h.store.Count(ctx, "bot", "b-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueBotTokenRejectsInvalidID(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{" ", "", "b:1", "b:"} {
		res := RunIssueBotToken(context.Background(), id, nil, h.botDeps())
		assert.ErrorIs(t, res.Err, ErrInvalidSubject, "bot id %q", id)
	}
}

func TestIssueBotTokenLeavesPrefixSharingBotsAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A session written directly for a bot whose id extends another bot's id.
	require.NoError(t, h.store.Put(ctx, "bot", "b-10", "other-token", time.Hour))

	res := RunIssueBotToken(ctx, "b-1", nil, h.botDeps())
	require.NoError(t, res.Err)
	assert.Zero(t, res.Replaced)

	ok, err := h.store.Exists(ctx, "bot", "b-10", "other-token")
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := h.store.Count(ctx, "bot", "b-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueBotTokenSignsAccessOnly(t *testing.T) {
	h := newHarness(t)
	var draws int
	mgr, err := jwt.NewManager(jwt.Config{
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    h.edPriv,
		PublicKey:     h.edPub,
	}, jwt.WithClock(h.clock.Now), jwt.WithJTISource(func() (string, error) {
		draws++
		return fmt.Sprintf("jti-%d", draws), nil
	}))
	require.NoError(t, err)

	deps := h.botDeps()
	deps.Signer = mgr
	res := RunIssueBotToken(context.Background(), "b-1", []string{"ingest"}, deps)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, draws)
	assert.Equal(t, "jti-1", res.TokenID)

	claims, err := mgr.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, jwt.ClientBot, claims.Client)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
	_, err = mgr.VerifyRefresh(res.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalid)
}

func TestValidateAccess(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "u-1")

	v := RunValidateAccess(context.Background(), pair.AccessToken, h.validateDeps())
	require.Equal(t, ValidateFailureNone, v.Failure)
	assert.Equal(t, "u-1", v.Claims.RegisteredClaims.Subject)

	v = RunValidateAccess(context.Background(), pair.RefreshToken, h.validateDeps())
	assert.Equal(t, ValidateFailureUnauthorized, v.Failure)

	h.clock.Advance(testAccessTTL + time.Second)
	v = RunValidateAccess(context.Background(), pair.AccessToken, h.validateDeps())
	assert.Equal(t, ValidateFailureUnauthorized, v.Failure)
	assert.ErrorIs(t, v.Err, jwt.ErrTokenInvalid)
}

func TestValidateAccessStoreFailure(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "u-1")
	h.mr.SetError("LOADING")

	v := RunValidateAccess(context.Background(), pair.AccessToken, h.validateDeps())
	assert.Equal(t, ValidateFailureStore, v.Failure)
	assert.ErrorIs(t, v.Err, store.ErrUnavailable)
}

type failingLimiter struct{ err error }

func (f failingLimiter) Check(context.Context, rate.Rule, rate.Identity, string) (rate.Decision, error) {
	return rate.Decision{}, f.err
}

func TestCheckRateUsesRouteRule(t *testing.T) {
	h := newHarness(t)
	rdb := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	deps := RateDeps{
		Limiter: rate.New(rdb, time.Second, rate.WithClock(h.clock.Now)),
		Policy: rate.Policy{
			Default: rate.Rule{Limit: 100, Window: time.Minute, KeyBy: rate.KeyByIP},
			Routes: map[string]rate.Rule{
				"/auth/refresh": {Limit: 2, Window: time.Minute, KeyBy: rate.KeyByUser},
			},
		},
	}
	id := rate.Identity{UserID: "u-1", IP: "10.0.0.1"}

	for i := 0; i < 2; i++ {
		res := RunCheckRate(context.Background(), id, "/auth/refresh", deps)
		require.NoError(t, res.Err)
		assert.True(t, res.Decision.Allowed)
	}
	res := RunCheckRate(context.Background(), id, "/auth/refresh", deps)
	require.NoError(t, res.Err)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, time.Minute, res.Decision.RetryAfter)

	res = RunCheckRate(context.Background(), id, "/other", deps)
	require.NoError(t, res.Err)
	assert.True(t, res.Decision.Allowed)
	assert.Equal(t, 100, res.Rule.Limit)
}

func TestCheckRateFailureModes(t *testing.T) {
	boom := errors.Join(store.ErrUnavailable, errors.New("dial tcp: refused"))
	policy := rate.Policy{Default: rate.Rule{Limit: 1, Window: time.Second, KeyBy: rate.KeyByIP}}
	id := rate.Identity{IP: "10.0.0.1"}

	closed := RunCheckRate(context.Background(), id, "/x", RateDeps{Limiter: failingLimiter{boom}, Policy: policy})
	assert.ErrorIs(t, closed.Err, store.ErrUnavailable)
	assert.False(t, closed.Decision.Allowed)
	assert.False(t, closed.FailedOpen)

	open := RunCheckRate(context.Background(), id, "/x", RateDeps{Limiter: failingLimiter{boom}, Policy: policy, FailOpen: true})
	assert.ErrorIs(t, open.Err, store.ErrUnavailable)
	assert.True(t, open.Decision.Allowed)
	assert.True(t, open.FailedOpen)
}

func TestServiceInitialized(t *testing.T) {
	assert.False(t, Service{}.Initialized())

	h := newHarness(t)
	svc := New(Deps{Refresh: h.refreshDeps(), Login: h.loginDeps()})
	assert.True(t, svc.Initialized())

	res := svc.Login(context.Background(), jwt.Subject{ID: "u-9"})
	require.NoError(t, res.Err)
}
