package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/warden/jwt"
)

// ErrInvalidSubject is returned for subjects without an id, with an id that
// cannot be used as a session key segment, or with a client kind that cannot
// hold a refresh session.
var ErrInvalidSubject = errors.New("invalid subject")

// validSubjectID reports whether id can address its own session keys. A ':'
// would let one subject's key pattern match another subject's sessions.
func validSubjectID(id string) bool {
	return id != "" && !strings.ContainsRune(id, ':')
}

// LoginDeps captures issue-for-login dependencies.
type LoginDeps struct {
	Signer     TokenSigner
	Sessions   SessionRepository
	RefreshTTL time.Duration
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Pair *jwt.IssuedPair
	Err  error
	// Issued reports that tokens were signed; false with Err set means nothing
	// left the process.
	Issued bool
}

// RunLogin mints a pair for an already authenticated subject and records the
// refresh session. The session write happens after signing, so a store
// failure discards the signed pair.
func RunLogin(ctx context.Context, subject jwt.Subject, deps LoginDeps) LoginResult {
	subject.ID = strings.TrimSpace(subject.ID)
	if subject.Client == "" {
		subject.Client = jwt.ClientUser
	}
	if !validSubjectID(subject.ID) || subject.Client != jwt.ClientUser {
		return LoginResult{Err: ErrInvalidSubject}
	}

	pair, err := deps.Signer.IssuePair(ctx, subject, 0)
	if err != nil {
		return LoginResult{Err: err}
	}

	if err := deps.Sessions.Put(ctx, string(subject.Client), subject.ID, pair.RefreshClaims.ID, deps.RefreshTTL); err != nil {
		return LoginResult{Err: err, Issued: true}
	}

	return LoginResult{Pair: pair, Issued: true}
}
