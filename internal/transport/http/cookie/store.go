package cookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/port"
)

// DefaultSessionCookieName is the single cookie carrying the signed session
// token.
const DefaultSessionCookieName = "tg_session"

const (
	defaultRememberMeMaxAge = 30 * 24 * time.Hour
	defaultStandardMaxAge   = 7 * 24 * time.Hour
)

// Config controls the security attributes applied to the session cookie.
type Config struct {
	Name             string
	Domain           string
	Path             string
	Secure           bool
	RememberMeMaxAge time.Duration
	StandardMaxAge   time.Duration
}

// Store writes and reads the session token cookie. It carries no business
// logic: purely a keyed byte-string transport with fixed security attributes.
// SameSite is Lax so that top-level navigation from external links into
// authenticated deep-links keeps the session; the CSRF guard covers the gap
// Lax leaves on cross-site subresource requests.
type Store struct {
	cfg Config
}

// NewStore applies defaults and builds a Store.
func NewStore(cfg Config) *Store {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultSessionCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.RememberMeMaxAge <= 0 {
		cfg.RememberMeMaxAge = defaultRememberMeMaxAge
	}
	if cfg.StandardMaxAge <= 0 {
		cfg.StandardMaxAge = defaultStandardMaxAge
	}
	return &Store{cfg: cfg}
}

// Name returns the configured cookie name.
func (s *Store) Name() string {
	return s.cfg.Name
}

// Bind returns a request-scoped carrier over the supplied Gin context.
func (s *Store) Bind(c *gin.Context) *Carrier {
	return &Carrier{store: s, ctx: c}
}

// Carrier is the per-request cookie transport consumed by the session
// manager. A token stored during the request shadows the inbound cookie so
// that subsequent reads within the same request observe the new value.
type Carrier struct {
	store   *Store
	ctx     *gin.Context
	pending string
	cleared bool
}

var _ port.SessionCarrier = (*Carrier)(nil)

// Token extracts the raw session token: the value stored during this request
// when present, the request cookie otherwise.
func (c *Carrier) Token() (string, bool) {
	if c.cleared {
		return "", false
	}
	if c.pending != "" {
		return c.pending, true
	}

	raw, err := c.ctx.Cookie(c.store.cfg.Name)
	if err != nil {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}

// Store sets the session cookie on the response with the max age derived
// from the remember-me choice.
func (c *Carrier) Store(token string, rememberMe bool) {
	c.pending = token
	c.cleared = false

	maxAge := c.store.cfg.StandardMaxAge
	if rememberMe {
		maxAge = c.store.cfg.RememberMeMaxAge
	}

	http.SetCookie(c.ctx.Writer, &http.Cookie{
		Name:     c.store.cfg.Name,
		Value:    token,
		Path:     c.store.cfg.Path,
		Domain:   c.store.cfg.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.store.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear deletes the session cookie. Effective even when the stored token is
// already invalid or expired.
func (c *Carrier) Clear() {
	c.pending = ""
	c.cleared = true

	http.SetCookie(c.ctx.Writer, &http.Cookie{
		Name:     c.store.cfg.Name,
		Value:    "",
		Path:     c.store.cfg.Path,
		Domain:   c.store.cfg.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.store.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
