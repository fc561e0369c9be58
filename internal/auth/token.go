// Package auth verifies caller identity and mints service-to-service tokens.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller of a workflow.
type Identity struct {
	ClinicianID string
}

// Valid reports whether the identity names a caller.
func (i Identity) Valid() bool {
	return i.ClinicianID != ""
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	key  []byte
	skew time.Duration
	// audience is empty for caller tokens, which must not carry one.
	audience string
}

// NewVerifier creates a verifier for caller tokens signed with secret.
// Service tokens, which are addressed to a collaborator, are refused.
func NewVerifier(secret string) *Verifier {
	return &Verifier{key: []byte(secret), skew: 30 * time.Second}
}

// NewServiceVerifier creates a verifier for service tokens addressed to audience.
func NewServiceVerifier(secret, audience string) *Verifier {
	return &Verifier{key: []byte(secret), skew: 30 * time.Second, audience: audience}
}

// Verify validates the token and returns the caller identity carried in its subject.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrInvalidToken
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), v.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	aud, _ := tok.Audience()
	if v.audience == "" && len(aud) > 0 {
		return Identity{}, fmt.Errorf("%w: unexpected audience %v", ErrInvalidToken, aud)
	}
	if v.audience != "" && !slices.Contains(aud, v.audience) {
		return Identity{}, fmt.Errorf("%w: audience %v does not include %s", ErrInvalidToken, aud, v.audience)
	}
	return Identity{ClinicianID: sub}, nil
}

// Issuer mints short-lived HS256 tokens.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{key: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for subject. audience may be empty.
func (i *Issuer) Issue(subject, audience string) (string, error) {
	now := i.now()
	b := jwt.NewBuilder().
		Issuer(i.issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		JwtID(uuid.New().String())
	if audience != "" {
		b = b.Audience([]string{audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), i.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
