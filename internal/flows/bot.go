package flows

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/warden/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// BotDeps captures bot token issuance dependencies.
type BotDeps struct {
	Signer       TokenSigner
	Guard        BotSessionReplacer
	BotAccessTTL time.Duration
}

// BotResult is the access-only bot credential.
type BotResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	TokenID     string
	// Replaced is the number of prior bot sessions invalidated.
	Replaced int
	Err      error
}

// RunIssueBotToken issues an access-only token for botID and atomically makes
// it the bot's only live session.
func RunIssueBotToken(ctx context.Context, botID string, roles []string, deps BotDeps) BotResult {
	botID = strings.TrimSpace(botID)
	if !validSubjectID(botID) {
		return BotResult{Err: ErrInvalidSubject}
	}

	jti, err := deps.Signer.NextJTI()
	if err != nil {
		return BotResult{Err: err}
	}
	if roles == nil {
		roles = []string{}
	}
	now := deps.Signer.Now()
	token, err := deps.Signer.SignAccess(jwt.AccessClaims{
		Roles:  jwt.Roles(roles),
		Client: jwt.ClientBot,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   botID,
			ID:        jti,
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(deps.BotAccessTTL)),
		},
	})
	if err != nil {
		return BotResult{Err: err}
	}

	removed, err := deps.Guard.Replace(ctx, string(jwt.ClientBot), botID, jti, deps.BotAccessTTL)
	if err != nil {
		return BotResult{Err: err}
	}

	return BotResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(deps.BotAccessTTL / time.Second),
		TokenID:     jti,
		Replaced:    removed,
	}
}
