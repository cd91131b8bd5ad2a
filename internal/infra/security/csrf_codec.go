package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidCSRFToken covers signature mismatch, malformed structure and
// expiry of CSRF tokens.
var ErrInvalidCSRFToken = errors.New("csrf codec: invalid token")

// CSRFToken is the decoded short-lived anti-forgery payload. A token is
// meaningless detached from the session of the subject it was issued for.
type CSRFToken struct {
	SubjectID string
	Nonce     string
	IssuedAt  time.Time
}

type csrfClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// CSRFCodec signs and verifies CSRF tokens. It is a distinct signing pass
// from the session codec but shares the same symmetric secret.
type CSRFCodec struct {
	secret []byte
	now    func() time.Time
}

// NewCSRFCodec builds a codec; secret requirements match the session codec.
func NewCSRFCodec(secret string) (*CSRFCodec, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrSecretMissing
	}
	if len(trimmed) < MinSecretLength {
		return nil, fmt.Errorf("%w: %d < %d characters", ErrSecretTooShort, len(trimmed), MinSecretLength)
	}
	return &CSRFCodec{
		secret: []byte(trimmed),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (c *CSRFCodec) WithClock(clock func() time.Time) *CSRFCodec {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Encode issues a signed token bound to the subject with a random nonce and
// the supplied embedded expiry.
func (c *CSRFCodec) Encode(subjectID string, ttl time.Duration) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", fmt.Errorf("csrf codec: subject id is required")
	}

	now := c.now()
	claims := csrfClaims{
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Decode verifies the token and returns its payload. Freshness beyond the
// embedded expiry is the caller's concern.
func (c *CSRFCodec) Decode(token string) (*CSRFToken, error) {
	var claims csrfClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSRFToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: incomplete claims", ErrInvalidCSRFToken)
	}

	return &CSRFToken{
		SubjectID: claims.Subject,
		Nonce:     claims.Nonce,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
	}, nil
}
