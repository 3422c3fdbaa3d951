package flows

import (
	"context"
	"time"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Signer    TokenSigner
	Sessions  SessionRepository
	Blacklist AccessBlacklist
	AccessTTL time.Duration
}

// LogoutResult reports what logout changed.
type LogoutResult struct {
	Subject        string
	SessionDeleted bool
	// RefreshInvalid is set when the refresh token failed verification. It is
	// informational; logout still succeeds.
	RefreshInvalid bool
	RevokedAccess  string
	Err            error
}

// RunLogout deletes the session behind refreshToken and blacklists the access
// token id for one access lifetime. An unverifiable refresh token is not an
// error: the session it named is unusable anyway. When accessTokenID is empty
// the refresh token's aid is revoked instead.
func RunLogout(ctx context.Context, refreshToken, accessTokenID string, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	refresh, err := deps.Signer.VerifyRefresh(refreshToken)
	if err != nil {
		res.RefreshInvalid = true
	} else {
		res.Subject = refresh.RegisteredClaims.Subject
		if err := deps.Sessions.Delete(ctx, string(refresh.Client), res.Subject, refresh.ID); err != nil {
			res.Err = err
			return res
		}
		res.SessionDeleted = true
		if accessTokenID == "" {
			accessTokenID = refresh.AccessID
		}
	}

	if accessTokenID != "" && deps.Blacklist != nil {
		if _, err := deps.Blacklist.RevokeAccess(ctx, accessTokenID, deps.AccessTTL); err != nil {
			res.Err = err
			return res
		}
		res.RevokedAccess = accessTokenID
	}

	return res
}
