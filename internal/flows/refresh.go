package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureAccessTokenRequired is a client error, not an auth failure.
	RefreshFailureAccessTokenRequired
	RefreshFailureAccessUndecodable
	RefreshFailureTooEarly
	RefreshFailureWindowExceeded
	RefreshFailureRefreshInvalid
	RefreshFailurePairMismatch
	RefreshFailureBotClient
	RefreshFailureSessionNotFound
	RefreshFailureAccessRevoked
	RefreshFailureFallbackSignature
	RefreshFailureConfiguration
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshOutcome names the successful transition taken.
type RefreshOutcome int

const (
	RefreshOutcomeNone RefreshOutcome = iota
	// RefreshRotated: refresh token valid, old session atomically swapped.
	RefreshRotated
	// RefreshGraceReissued: refresh token invalid but the access token expired
	// inside the grace window, so a pair was rebuilt from its claims.
	RefreshGraceReissued
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshRotated:
		return "rotated"
	case RefreshGraceReissued:
		return "grace_reissued"
	default:
		return "none"
	}
}

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Outcome RefreshOutcome
	Failure RefreshFailureKind
	Err     error

	Subject    string
	Client     jwt.ClientKind
	AccessJTI  string
	OldTokenID string
	// ExpiredFor is how long ago the presented access token expired.
	ExpiredFor time.Duration
	Pair       *jwt.IssuedPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Signer    TokenSigner
	Sessions  SessionRepository
	Blacklist AccessBlacklist
	Now       func() time.Time
	// GraceWindow is W: how long after access expiry a refresh is accepted.
	GraceWindow time.Duration
	RefreshTTL  time.Duration
	// VerifyFallbackSignature additionally requires a valid access-token
	// signature on the grace path.
	VerifyFallbackSignature bool
}

// RunRefresh decides between rotation, grace reissue and rejection.
//
// Evaluation order:
//  1. the access token must be present and decodable (signature not checked);
//  2. an access token that has not expired yet is always "too early";
//  3. a valid refresh token rotates when the access token expired at most W
//     ago and is "window exceeded" otherwise;
//  4. an invalid refresh token falls back to reissuing from the access claims
//     when the access token expired at most W ago and is unauthorized otherwise.
func RunRefresh(ctx context.Context, refreshToken, accessToken string, deps RefreshDeps) RefreshResult {
	if strings.TrimSpace(accessToken) == "" {
		return RefreshResult{Failure: RefreshFailureAccessTokenRequired}
	}

	access, err := deps.Signer.DecodeAccessUnverified(accessToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureAccessUndecodable, Err: err}
	}
	if access.RegisteredClaims.Subject == "" || !access.Client.Valid() {
		return RefreshResult{Failure: RefreshFailureAccessUndecodable, Err: jwt.ErrTokenInvalid}
	}

	res := RefreshResult{
		Subject:   access.RegisteredClaims.Subject,
		Client:    access.Client,
		AccessJTI: access.ID,
	}

	now := deps.Now()
	exp := access.ExpiresAt.Time
	if exp.After(now) {
		res.Failure = RefreshFailureTooEarly
		return res
	}
	res.ExpiredFor = now.Sub(exp)
	inWindow := res.ExpiredFor <= deps.GraceWindow

	// Bot tokens are access-only and renewed through the bot guard.
	if access.Client == jwt.ClientBot {
		res.Failure = RefreshFailureBotClient
		return res
	}

	refresh, err := deps.Signer.VerifyRefresh(refreshToken)
	if err == nil {
		if !inWindow {
			res.Failure = RefreshFailureWindowExceeded
			return res
		}
		return rotate(ctx, res, access, refresh, deps)
	}
	if errors.Is(err, jwt.ErrConfiguration) {
		res.Failure = RefreshFailureConfiguration
		res.Err = err
		return res
	}
	if !inWindow {
		res.Failure = RefreshFailureRefreshInvalid
		res.Err = err
		return res
	}
	return graceReissue(ctx, res, access, accessToken, deps)
}

func rotate(ctx context.Context, res RefreshResult, access *jwt.AccessClaims, refresh *jwt.RefreshClaims, deps RefreshDeps) RefreshResult {
	if refresh.AccessID != access.ID ||
		refresh.RegisteredClaims.Subject != access.RegisteredClaims.Subject ||
		refresh.Client != access.Client {
		res.Failure = RefreshFailurePairMismatch
		res.Err = jwt.ErrTokenInvalid
		return res
	}
	res.OldTokenID = refresh.ID

	pair, err := deps.Signer.IssuePair(ctx, refresh.Identity(), 0)
	if err != nil {
		res.Failure = issueFailure(err)
		res.Err = err
		return res
	}

	err = deps.Sessions.Rotate(ctx, string(refresh.Client), res.Subject, refresh.ID, pair.RefreshClaims.ID, deps.RefreshTTL)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			res.Failure = RefreshFailureSessionNotFound
		} else {
			res.Failure = RefreshFailureStore
		}
		res.Err = err
		return res
	}

	res.Outcome = RefreshRotated
	res.Pair = pair
	return res
}

// graceReissue is at-least-once: two concurrent fallbacks for the same access
// token both mint a session. Logout of either pair blacklists the shared
// access jti, which stops further fallbacks from it.
func graceReissue(ctx context.Context, res RefreshResult, access *jwt.AccessClaims, accessToken string, deps RefreshDeps) RefreshResult {
	if deps.Blacklist != nil {
		revoked, err := deps.Blacklist.IsAccessRevoked(ctx, access.ID)
		if err != nil {
			res.Failure = RefreshFailureStore
			res.Err = err
			return res
		}
		if revoked {
			res.Failure = RefreshFailureAccessRevoked
			return res
		}
	}

	if deps.VerifyFallbackSignature {
		if _, err := deps.Signer.VerifySignature(accessToken, jwt.TokenTypeAccess); err != nil {
			res.Failure = RefreshFailureFallbackSignature
			res.Err = err
			return res
		}
	}

	pair, err := deps.Signer.IssuePair(ctx, access.Identity(), 0)
	if err != nil {
		res.Failure = issueFailure(err)
		res.Err = err
		return res
	}

	if err := deps.Sessions.Put(ctx, string(access.Client), res.Subject, pair.RefreshClaims.ID, deps.RefreshTTL); err != nil {
		res.Failure = RefreshFailureStore
		res.Err = err
		return res
	}

	res.Outcome = RefreshGraceReissued
	res.Pair = pair
	return res
}

func issueFailure(err error) RefreshFailureKind {
	if errors.Is(err, jwt.ErrConfiguration) {
		return RefreshFailureConfiguration
	}
	return RefreshFailureIssue
}
