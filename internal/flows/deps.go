package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/jwt"
)

// TokenSigner mints and checks tokens. *jwt.Manager satisfies it.
type TokenSigner interface {
	Now() time.Time
	NextJTI() (string, error)
	IssuePair(ctx context.Context, subject jwt.Subject, accessTTL time.Duration) (*jwt.IssuedPair, error)
	SignAccess(claims jwt.AccessClaims) (string, error)
	VerifyAccess(token string) (*jwt.AccessClaims, error)
	VerifyRefresh(token string) (*jwt.RefreshClaims, error)
	VerifySignature(token string, expected jwt.TokenType) (*jwt.RefreshClaims, error)
	DecodeAccessUnverified(token string) (*jwt.AccessClaims, error)
}

// SessionRepository persists refresh sessions. *session.Store satisfies it.
type SessionRepository interface {
	Put(ctx context.Context, kind, subject, tokenID string, ttl time.Duration) error
	Delete(ctx context.Context, kind, subject, tokenID string) error
	Exists(ctx context.Context, kind, subject, tokenID string) (bool, error)
	Rotate(ctx context.Context, kind, subject, oldID, newID string, ttl time.Duration) error
}

// AccessBlacklist tracks revoked access token ids. *session.Store satisfies it.
type AccessBlacklist interface {
	RevokeAccess(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
}

// BotSessionReplacer enforces one session per bot. *session.BotGuard satisfies it.
type BotSessionReplacer interface {
	Replace(ctx context.Context, kind, botID, newTokenID string, ttl time.Duration) (int, error)
}

// RateChecker counts requests. *rate.Limiter satisfies it.
type RateChecker interface {
	Check(ctx context.Context, rule rate.Rule, id rate.Identity, route string) (rate.Decision, error)
}

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Bot      BotDeps
	Validate ValidateDeps
	Rate     RateDeps

	ConfirmEmail ConfirmEmailDeps
	ResetCode    ResetCodeDeps
}
