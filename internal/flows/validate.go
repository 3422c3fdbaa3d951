package flows

import (
	"context"

	"github.com/MrEthical07/warden/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureUnauthorized
	ValidateFailureRevoked
	ValidateFailureSessionNotFound
	ValidateFailureStore
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	Signer    TokenSigner
	Sessions  SessionRepository
	Blacklist AccessBlacklist
}

// RunValidateAccess verifies an access token and checks revocation. Bot
// tokens additionally require their session to still exist, so a token from
// a replaced bot session stops working immediately.
func RunValidateAccess(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Signer.VerifyAccess(token)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}

	if deps.Blacklist != nil {
		revoked, err := deps.Blacklist.IsAccessRevoked(ctx, claims.ID)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureStore, Err: err}
		}
		if revoked {
			return ValidateResult{Failure: ValidateFailureRevoked}
		}
	}

	if claims.Client == jwt.ClientBot {
		ok, err := deps.Sessions.Exists(ctx, string(jwt.ClientBot), claims.RegisteredClaims.Subject, claims.ID)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureStore, Err: err}
		}
		if !ok {
			return ValidateResult{Failure: ValidateFailureSessionNotFound}
		}
	}

	return ValidateResult{Claims: claims}
}
