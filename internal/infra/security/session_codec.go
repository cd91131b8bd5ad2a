package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackpilot/teamgate/internal/core/domain"
)

// MinSecretLength is the minimum accepted signing secret length. Anything
// shorter offers too little entropy for HMAC-SHA256.
const MinSecretLength = 32

var (
	// ErrSecretMissing indicates no signing secret was configured.
	ErrSecretMissing = errors.New("session codec: signing secret is required")
	// ErrSecretTooShort indicates the configured secret is below MinSecretLength.
	ErrSecretTooShort = errors.New("session codec: signing secret too short")
	// ErrInvalidSessionToken covers signature mismatch, malformed structure
	// and expiry. Callers above the usecase boundary never see this error;
	// it is converted into an absent session.
	ErrInvalidSessionToken = errors.New("session codec: invalid token")
)

type organizationDomainClaim struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	State  string `json:"state"`
}

type organizationClaim struct {
	ID       string                    `json:"id"`
	Name     string                    `json:"name"`
	Color    string                    `json:"color,omitempty"`
	Personal bool                      `json:"personal,omitempty"`
	Domains  []organizationDomainClaim `json:"domains,omitempty"`
}

type subjectClaim struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

type sessionClaims struct {
	SubjectData  subjectClaim        `json:"sd"`
	AccessToken  string              `json:"at"`
	RefreshToken string              `json:"rt"`
	Orgs         []organizationClaim `json:"orgs"`
	CurrentOrg   string              `json:"cur,omitempty"`
	LastActivity int64               `json:"la"`
	SessionExp   int64               `json:"se"`
	RememberMe   bool                `json:"rm"`
	jwt.RegisteredClaims
}

// SessionCodec signs and verifies the compact session token using a
// process-wide symmetric secret. Rotating the secret invalidates every
// outstanding session; that is an accepted operational trade-off.
type SessionCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionCodec validates the secret and builds a codec. Construction fails
// hard on a missing or short secret so that misconfiguration prevents startup
// instead of silently issuing weak tokens.
func NewSessionCodec(secret, issuer string) (*SessionCodec, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrSecretMissing
	}
	if len(trimmed) < MinSecretLength {
		return nil, fmt.Errorf("%w: %d < %d characters", ErrSecretTooShort, len(trimmed), MinSecretLength)
	}
	return &SessionCodec{
		secret: []byte(trimmed),
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (c *SessionCodec) WithClock(clock func() time.Time) *SessionCodec {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Encode serializes the session into a signed compact token with the supplied
// ttl as its embedded expiration claim.
func (c *SessionCodec) Encode(session domain.Session, ttl time.Duration) (string, error) {
	now := c.now()

	orgs := make([]organizationClaim, 0, len(session.Organizations))
	for _, org := range session.Organizations {
		domains := make([]organizationDomainClaim, 0, len(org.Domains))
		for _, d := range org.Domains {
			domains = append(domains, organizationDomainClaim{
				ID:     d.ID,
				Domain: d.Domain,
				State:  string(d.State),
			})
		}
		if len(domains) == 0 {
			domains = nil
		}
		orgs = append(orgs, organizationClaim{
			ID:       org.ID,
			Name:     org.Name,
			Color:    org.Color,
			Personal: org.Personal,
			Domains:  domains,
		})
	}

	claims := sessionClaims{
		SubjectData: subjectClaim{
			ID:            session.Subject.ID,
			Email:         session.Subject.Email,
			FirstName:     session.Subject.FirstName,
			LastName:      session.Subject.LastName,
			EmailVerified: session.Subject.EmailVerified,
		},
		AccessToken:  session.Credential.AccessToken,
		RefreshToken: session.Credential.RefreshToken,
		Orgs:         orgs,
		CurrentOrg:   session.CurrentOrganizationID,
		LastActivity: session.LastActivity.UTC().Unix(),
		SessionExp:   session.ExpiresAt.UTC().Unix(),
		RememberMe:   session.RememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Subject.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature and embedded expiration and reconstructs the
// session payload. Any failure collapses into ErrInvalidSessionToken; the
// caller is responsible for the "no token supplied" case.
func (c *SessionCodec) Decode(token string) (*domain.Session, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if strings.TrimSpace(claims.SubjectData.ID) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSessionToken)
	}

	orgs := make([]domain.Organization, 0, len(claims.Orgs))
	for _, org := range claims.Orgs {
		domains := make([]domain.OrganizationDomain, 0, len(org.Domains))
		for _, d := range org.Domains {
			domains = append(domains, domain.OrganizationDomain{
				ID:     d.ID,
				Domain: d.Domain,
				State:  domain.DomainState(d.State),
			})
		}
		if len(domains) == 0 {
			domains = nil
		}
		orgs = append(orgs, domain.Organization{
			ID:       org.ID,
			Name:     org.Name,
			Color:    org.Color,
			Personal: org.Personal,
			Domains:  domains,
		})
	}

	session := &domain.Session{
		Subject: domain.Subject{
			ID:            claims.SubjectData.ID,
			Email:         claims.SubjectData.Email,
			FirstName:     claims.SubjectData.FirstName,
			LastName:      claims.SubjectData.LastName,
			EmailVerified: claims.SubjectData.EmailVerified,
		},
		Credential: domain.UpstreamCredential{
			AccessToken:  claims.AccessToken,
			RefreshToken: claims.RefreshToken,
		},
		Organizations:         orgs,
		CurrentOrganizationID: claims.CurrentOrg,
		LastActivity:          time.Unix(claims.LastActivity, 0).UTC(),
		ExpiresAt:             time.Unix(claims.SessionExp, 0).UTC(),
		RememberMe:            claims.RememberMe,
	}

	return session, nil
}
