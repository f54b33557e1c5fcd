package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the session lifetime used when no TTL is configured.
const DefaultTokenTTL = 8 * time.Hour

// Token is a signed session token together with the claims it carries.
type Token struct {
	Value  string
	Claims Claims
}

// Codec issues and decodes HS256 session tokens.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec constructs a codec signing with secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL reports the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

type tokenClaims struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	Name        string         `json:"name"`
	Role        string         `json:"role"`
	RoleID      int64          `json:"role_id"`
	UnitName    string         `json:"unit_name,omitempty"`
	Permissions map[string]any `json:"permissions"`
	jwt.RegisteredClaims
}

// Issue signs claims with an expiry of now+TTL. The returned Token carries the
// claims exactly as Decode will reproduce them.
func (c *Codec) Issue(claims Claims) (Token, error) {
	now := c.now().UTC().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(c.ttl)
	claims.Permissions = NormalizePermissions(permissionPayload(claims.Permissions))

	payload := tokenClaims{
		ID:          claims.SubjectID,
		UserID:      claims.UserID,
		Name:        claims.Name,
		Role:        claims.Role,
		RoleID:      claims.RoleID,
		UnitName:    claims.UnitName,
		Permissions: permissionPayload(claims.Permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(claims.SubjectID, 10),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{Value: signed, Claims: claims}, nil
}

// Decode verifies the signature of raw and then its expiry.
// Signature, format and algorithm failures yield ErrTokenInvalid; a correctly
// signed token at or past its expiry yields ErrTokenExpired.
func (c *Codec) Decode(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrTokenInvalid
	}

	var payload tokenClaims
	_, err := jwt.ParseWithClaims(raw, &payload, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if payload.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}
	if c.issuer != "" && payload.Issuer != c.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	expires := payload.ExpiresAt.Time.UTC()
	if !c.now().Before(expires) {
		return Claims{}, ErrTokenExpired
	}

	claims := Claims{
		SubjectID:   payload.ID,
		UserID:      payload.UserID,
		Name:        payload.Name,
		Role:        payload.Role,
		RoleID:      payload.RoleID,
		UnitName:    payload.UnitName,
		Permissions: NormalizePermissions(payload.Permissions),
		ExpiresAt:   expires,
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time.UTC()
	}
	if claims.SubjectID == 0 && payload.Subject != "" {
		if id, err := strconv.ParseInt(payload.Subject, 10, 64); err == nil {
			claims.SubjectID = id
		}
	}
	return claims, nil
}

func permissionPayload(p Permissions) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
