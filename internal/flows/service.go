package flows

import (
	"context"

	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Refresh.Signer != nil && s.deps.Refresh.Sessions != nil
}

func (s Service) Login(ctx context.Context, subject jwt.Subject) LoginResult {
	return RunLogin(ctx, subject, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken, accessToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, accessToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, refreshToken, accessTokenID string) LogoutResult {
	return RunLogout(ctx, refreshToken, accessTokenID, s.deps.Logout)
}

func (s Service) IssueBotToken(ctx context.Context, botID string, roles []string) BotResult {
	return RunIssueBotToken(ctx, botID, roles, s.deps.Bot)
}

func (s Service) ValidateAccess(ctx context.Context, token string) ValidateResult {
	return RunValidateAccess(ctx, token, s.deps.Validate)
}

func (s Service) CheckRate(ctx context.Context, id rate.Identity, route string) RateResult {
	return RunCheckRate(ctx, id, route, s.deps.Rate)
}

func (s Service) IssueEmailConfirmation(ctx context.Context, subjectID, email string) ConfirmationResult {
	return RunIssueEmailConfirmation(ctx, subjectID, email, s.deps.ConfirmEmail)
}

func (s Service) ConfirmEmail(ctx context.Context, token string) ConfirmationResult {
	return RunConfirmEmail(ctx, token, s.deps.ConfirmEmail)
}

func (s Service) IssueResetCode(ctx context.Context, subjectID, email string) ResetCodeResult {
	return RunIssueResetCode(ctx, subjectID, email, s.deps.ResetCode)
}

func (s Service) VerifyResetCode(ctx context.Context, subjectID, code string) ResetCodeResult {
	return RunVerifyResetCode(ctx, subjectID, code, s.deps.ResetCode)
}
