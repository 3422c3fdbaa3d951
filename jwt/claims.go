package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is carried in the "type" claim and pins a token to one flow.
type TokenType string

const (
	// TokenTypeAccess marks short-lived bearer tokens.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh marks long-lived rotation tokens.
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeConfirmEmail marks email confirmation links. They carry no
	// roles or client and are never accepted as bearer credentials.
	TokenTypeConfirmEmail TokenType = "confirm_email"
)

// ClientKind distinguishes human users from automated bot callers.
type ClientKind string

const (
	ClientUser ClientKind = "user"
	ClientBot  ClientKind = "bot"
)

// Valid reports whether k is a known client kind.
func (k ClientKind) Valid() bool {
	return k == ClientUser || k == ClientBot
}

// Roles is the canonical role list. On decode it accepts either a JSON array
// of strings or a single string of space or comma separated names; it always
// encodes as an array.
type Roles []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Roles) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Roles{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ParseRoles(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		out := make(Roles, 0, len(list))
		for _, role := range list {
			if role = strings.TrimSpace(role); role != "" {
				out = append(out, role)
			}
		}
		*r = out
		return nil
	default:
		return fmt.Errorf("roles: unsupported JSON value %s", data)
	}
}

// MarshalJSON implements json.Marshaler.
func (r Roles) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(r))
}

// Has reports whether role is present.
func (r Roles) Has(role string) bool {
	for _, v := range r {
		if v == role {
			return true
		}
	}
	return false
}

// ParseRoles splits a space or comma separated role string.
func ParseRoles(s string) Roles {
	fields := strings.FieldsFunc(s, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\t' || c == '\n'
	})
	if fields == nil {
		return Roles{}
	}
	return Roles(fields)
}

// Subject is the identity a token pair is minted for.
type Subject struct {
	ID     string
	Email  string
	Roles  Roles
	Client ClientKind
}

// AccessClaims is the payload of an access token:
// {sub, email?, roles, client, type:"access", jti, exp, iat}.
type AccessClaims struct {
	Email  string     `json:"email,omitempty"`
	Roles  Roles      `json:"roles"`
	Client ClientKind `json:"client"`
	Type   TokenType  `json:"type"`
	jwt.RegisteredClaims
}

// Identity rebuilds the subject carried by the claims.
func (c *AccessClaims) Identity() Subject {
	return Subject{
		ID:     c.RegisteredClaims.Subject,
		Email:  c.Email,
		Roles:  append(Roles(nil), c.Roles...),
		Client: c.Client,
	}
}

// RefreshClaims adds the paired access token id to the access payload.
type RefreshClaims struct {
	AccessClaims
	AccessID string `json:"aid,omitempty"`
}
