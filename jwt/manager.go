package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SigningMethod selects the asymmetric algorithm used for both token types.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable.
type SigningMethod string

const (
	// MethodRS256 signs with RSA PKCS#1 v1.5 over SHA-256. It is the default.
	MethodRS256 SigningMethod = "rs256"
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrConfiguration is returned when a signing or verification key is
	// missing or unusable, or the manager configuration is invalid.
	ErrConfiguration = errors.New("token configuration error")
	// ErrTokenInvalid covers bad signatures, expiry, claim validation failures
	// and token type mismatches. Callers must not distinguish between them.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config defines the token issuer settings.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// PrivateKey is PEM (RSA or Ed25519) or a raw 64-byte Ed25519 key.
	// Required for issuance only.
	PrivateKey []byte
	// PublicKey is PEM (RSA or Ed25519) or a raw 32-byte Ed25519 key.
	// Required for verification only.
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	KeyID     string
}

// JTISource yields a fresh token identifier per call.
type JTISource func() (string, error)

// UUIDSource returns random v4 UUIDs.
func UUIDSource() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects the time source used for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithJTISource replaces the default UUID token id source.
func WithJTISource(src JTISource) Option {
	return func(m *Manager) {
		if src != nil {
			m.jti = src
		}
	}
}

// Manager signs and verifies access and refresh tokens.
//
// Manager is safe for concurrent use once constructed.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	now       func() time.Time
	jti       JTISource
}

// IssuedPair is the result of IssuePair.
type IssuedPair struct {
	AccessToken   string
	RefreshToken  string
	TokenType     string
	ExpiresIn     int64
	AccessClaims  AccessClaims
	RefreshClaims RefreshClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager validates TTLs and leeway, rejects symmetric algorithms and parses
// whichever keys are present. A missing key is not an error here; the
// operation that needs it returns ErrConfiguration instead.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid TTL configuration", ErrConfiguration)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: invalid leeway configuration", ErrConfiguration)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodRS256
	}

	m := &Manager{
		config: cfg,
		now:    time.Now,
		jti:    UUIDSource,
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	switch cfg.SigningMethod {
	case MethodRS256:
		m.method = jwt.SigningMethodRS256
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseRSAPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.verifyKey, err = parseRSAPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.verifyKey, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrConfiguration, cfg.SigningMethod)
	}

	return m, nil
}

// CanSign reports whether a private key is configured.
func (m *Manager) CanSign() bool { return m.signKey != nil }

// CanVerify reports whether a public key is configured.
func (m *Manager) CanVerify() bool { return m.verifyKey != nil }

// AccessTTL returns the configured access lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Now returns the manager clock reading.
func (m *Manager) Now() time.Time { return m.now() }

// NextJTI draws one identifier from the configured source.
func (m *Manager) NextJTI() (string, error) {
	id, err := m.jti()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return id, nil
}

// SignAccess signs claims as an access token. Type is forced to access and
// unset registered claims are filled from configuration.
func (m *Manager) SignAccess(claims AccessClaims) (string, error) {
	claims.Type = TokenTypeAccess
	m.fillRegistered(&claims.RegisteredClaims, m.config.AccessTTL)
	return m.sign(claims)
}

// SignRefresh signs claims as a refresh token.
func (m *Manager) SignRefresh(claims RefreshClaims) (string, error) {
	claims.Type = TokenTypeRefresh
	m.fillRegistered(&claims.RegisteredClaims, m.config.RefreshTTL)
	return m.sign(claims)
}

// IssuePair mints an access/refresh pair for subject. Both token ids are
// fresh; the refresh token's aid links it to the access token. A positive
// accessTTL overrides the configured access lifetime.
func (m *Manager) IssuePair(ctx context.Context, subject Subject, accessTTL time.Duration) (*IssuedPair, error) {
	if m.signKey == nil {
		return nil, fmt.Errorf("%w: private key is not configured", ErrConfiguration)
	}
	if accessTTL <= 0 {
		accessTTL = m.config.AccessTTL
	}

	accessID, err := m.NextJTI()
	if err != nil {
		return nil, err
	}
	refreshID, err := m.NextJTI()
	if err != nil {
		return nil, err
	}

	now := m.now()
	roles := subject.Roles
	if roles == nil {
		roles = Roles{}
	}

	access := AccessClaims{
		Email:  subject.Email,
		Roles:  roles,
		Client: subject.Client,
		Type:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			ID:        accessID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
	}
	m.fillRegistered(&access.RegisteredClaims, accessTTL)

	refresh := RefreshClaims{AccessClaims: access, AccessID: accessID}
	refresh.Type = TokenTypeRefresh
	refresh.ID = refreshID
	refresh.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.RefreshTTL))

	pair := &IssuedPair{
		TokenType:     "Bearer",
		ExpiresIn:     int64(accessTTL / time.Second),
		AccessClaims:  access,
		RefreshClaims: refresh,
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := m.sign(access)
		pair.AccessToken = tok
		return err
	})
	g.Go(func() error {
		tok, err := m.sign(refresh)
		pair.RefreshToken = tok
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pair, nil
}

// SignConfirmation signs an email confirmation token for subjectID and
// email. It returns the token and its claims.
func (m *Manager) SignConfirmation(subjectID, email string, ttl time.Duration) (string, *AccessClaims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("%w: invalid confirmation TTL", ErrConfiguration)
	}
	jti, err := m.NextJTI()
	if err != nil {
		return "", nil, err
	}

	now := m.now()
	claims := AccessClaims{
		Email: email,
		Roles: Roles{},
		Type:  TokenTypeConfirmEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	m.fillRegistered(&claims.RegisteredClaims, ttl)

	tok, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return tok, &claims, nil
}

// VerifyConfirmation verifies an email confirmation token. Access and
// refresh tokens are rejected by their type claim.
func (m *Manager) VerifyConfirmation(token string) (*AccessClaims, error) {
	claims, err := m.Verify(token, TokenTypeConfirmEmail)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: confirmation token has no email", ErrTokenInvalid)
	}
	return &claims.AccessClaims, nil
}

// VerifyAccess verifies signature, expiry and type of an access token.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	claims, err := m.Verify(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &claims.AccessClaims, nil
}

// VerifyRefresh verifies signature, expiry and type of a refresh token.
func (m *Manager) VerifyRefresh(token string) (*RefreshClaims, error) {
	return m.Verify(token, TokenTypeRefresh)
}

// Verify parses token, verifies it with the public key and checks that its
// type claim equals expected. All failures other than a missing key wrap
// ErrTokenInvalid.
func (m *Manager) Verify(token string, expected TokenType) (*RefreshClaims, error) {
	return m.verify(token, expected, true)
}

// VerifySignature is Verify without time-based claim validation. It is used
// for tokens that are expected to be expired, such as an access token
// presented for a grace-window refresh.
func (m *Manager) VerifySignature(token string, expected TokenType) (*RefreshClaims, error) {
	return m.verify(token, expected, false)
}

// DecodeAccessUnverified decodes access claims without checking signature or
// expiry. The result must only be used as payload, never as proof of identity.
func (m *Manager) DecodeAccessUnverified(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}
	return claims, nil
}

func (m *Manager) verify(token string, expected TokenType, validateClaims bool) (*RefreshClaims, error) {
	if m.verifyKey == nil {
		return nil, fmt.Errorf("%w: public key is not configured", ErrConfiguration)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if validateClaims {
		options = append(options, jwt.WithExpirationRequired())
		if m.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(m.config.Leeway))
		}
		if m.config.Issuer != "" {
			options = append(options, jwt.WithIssuer(m.config.Issuer))
		}
		if m.config.Audience != "" {
			options = append(options, jwt.WithAudience(m.config.Audience))
		}
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &RefreshClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, jwt.ErrTokenInvalidClaims)
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, expected, claims.Type)
	}
	if expected == TokenTypeRefresh && claims.AccessID == "" {
		return nil, fmt.Errorf("%w: refresh token has no aid", ErrTokenInvalid)
	}

	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	if m.signKey == nil {
		return "", fmt.Errorf("%w: private key is not configured", ErrConfiguration)
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.signKey)
}

func (m *Manager) fillRegistered(rc *jwt.RegisteredClaims, ttl time.Duration) {
	now := m.now()
	if rc.IssuedAt == nil {
		rc.IssuedAt = jwt.NewNumericDate(now)
	}
	if rc.ExpiresAt == nil {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if rc.Issuer == "" {
		rc.Issuer = m.config.Issuer
	}
	if len(rc.Audience) == 0 && m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
}

func parseRSAPrivateKey(key []byte) (*rsa.PrivateKey, error) {
	parsed, err := jwt.ParseRSAPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rsa private key", ErrConfiguration)
	}
	return parsed, nil
}

func parseRSAPublicKey(key []byte) (*rsa.PublicKey, error) {
	parsed, err := jwt.ParseRSAPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rsa public key", ErrConfiguration)
	}
	return parsed, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrConfiguration)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrConfiguration)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrConfiguration)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrConfiguration)
	}
	return edKey, nil
}
