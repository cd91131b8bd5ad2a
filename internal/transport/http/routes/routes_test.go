package routes_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
	"github.com/stackpilot/teamgate/internal/infra/security"
	"github.com/stackpilot/teamgate/internal/repository"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	httproutes "github.com/stackpilot/teamgate/internal/transport/http/routes"
	"github.com/stackpilot/teamgate/internal/usecase"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubDirectory struct {
	subject domain.Subject
	org     domain.Organization
}

func (d *stubDirectory) GetSubject(_ context.Context, id string) (*domain.Subject, error) {
	if id != d.subject.ID {
		return nil, repository.ErrNotFound
	}
	subject := d.subject
	return &subject, nil
}

func (d *stubDirectory) UpdateSubject(_ context.Context, id string, patch port.SubjectPatch) (*domain.Subject, error) {
	if id != d.subject.ID {
		return nil, repository.ErrNotFound
	}
	subject := d.subject
	if patch.FirstName != nil {
		subject.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		subject.LastName = *patch.LastName
	}
	if patch.Email != nil {
		subject.Email = *patch.Email
	}
	return &subject, nil
}

func (d *stubDirectory) ListMembershipsBySubject(_ context.Context, subjectID string, _ port.Pagination) ([]domain.Membership, error) {
	if subjectID != d.subject.ID {
		return nil, nil
	}
	org := d.org
	return []domain.Membership{{
		ID:             "mem_01",
		SubjectID:      subjectID,
		OrganizationID: org.ID,
		Role:           domain.RoleAdmin,
		Status:         domain.MembershipActive,
		Organization:   &org,
	}}, nil
}

func (d *stubDirectory) ListMembershipsByOrganization(_ context.Context, organizationID string, _ port.Pagination) ([]domain.Membership, error) {
	if organizationID != d.org.ID {
		return nil, repository.ErrNotFound
	}
	return []domain.Membership{{
		ID:             "mem_01",
		SubjectID:      d.subject.ID,
		OrganizationID: organizationID,
		Role:           domain.RoleAdmin,
		Status:         domain.MembershipActive,
	}}, nil
}

func (d *stubDirectory) CreateMembership(_ context.Context, subjectID, organizationID string, role domain.MembershipRole) (*domain.Membership, error) {
	return &domain.Membership{ID: "mem_new", SubjectID: subjectID, OrganizationID: organizationID, Role: role}, nil
}

func (d *stubDirectory) UpdateMembership(_ context.Context, membershipID string, patch port.MembershipPatch) (*domain.Membership, error) {
	membership := domain.Membership{ID: membershipID, SubjectID: d.subject.ID, OrganizationID: d.org.ID}
	if patch.Role != nil {
		membership.Role = *patch.Role
	}
	return &membership, nil
}

func (d *stubDirectory) DeleteMembership(context.Context, string) error { return nil }

func (d *stubDirectory) GetOrganization(_ context.Context, id string) (*domain.Organization, error) {
	if id != d.org.ID {
		return nil, repository.ErrNotFound
	}
	org := d.org
	return &org, nil
}

func (d *stubDirectory) CreateOrganization(_ context.Context, spec port.OrganizationSpec) (*domain.Organization, error) {
	return &domain.Organization{ID: "org_new", Name: spec.Name, Color: spec.Color, Personal: spec.Personal}, nil
}

func (d *stubDirectory) UpdateOrganization(_ context.Context, id string, patch port.OrganizationPatch) (*domain.Organization, error) {
	if id != d.org.ID {
		return nil, repository.ErrNotFound
	}
	org := d.org
	if patch.Name != nil {
		org.Name = *patch.Name
	}
	return &org, nil
}

func (d *stubDirectory) DeleteOrganization(context.Context, string) error { return nil }

func (d *stubDirectory) SendInvitation(_ context.Context, spec port.InvitationSpec) (*domain.Invitation, error) {
	return &domain.Invitation{
		ID:             "inv_01",
		Email:          spec.Email,
		OrganizationID: spec.OrganizationID,
		Role:           spec.Role,
		State:          domain.InvitationPending,
	}, nil
}

func (d *stubDirectory) ListInvitations(context.Context, string, port.Pagination) ([]domain.Invitation, error) {
	return nil, nil
}

func (d *stubDirectory) GetInvitation(context.Context, string) (*domain.Invitation, error) {
	return nil, repository.ErrNotFound
}

func (d *stubDirectory) RevokeInvitation(context.Context, string) error { return nil }

func (d *stubDirectory) AuthenticateWithCode(_ context.Context, code string) (*port.AuthenticatedSubject, error) {
	if code != "good-code" {
		return nil, repository.ErrNotFound
	}
	return &port.AuthenticatedSubject{
		Subject:      d.subject,
		AccessToken:  "upstream-access",
		RefreshToken: "upstream-refresh",
	}, nil
}

func (d *stubDirectory) AuthenticateWithOrganizationSelection(context.Context, string, string) (*port.AuthenticatedSubject, error) {
	return nil, repository.ErrNotFound
}

func newTestRouter(t *testing.T) (*gin.Engine, *cookie.Store) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	directory := &stubDirectory{
		subject: domain.Subject{ID: "subj_01", Email: "ada@example.com", FirstName: "Ada", EmailVerified: true},
		org:     domain.Organization{ID: "org_01", Name: "Analytical Engines", Color: "#112233"},
	}

	sessionCodec, err := security.NewSessionCodec(testSecret, "teamgate")
	if err != nil {
		t.Fatalf("session codec: %v", err)
	}
	csrfCodec, err := security.NewCSRFCodec(testSecret)
	if err != nil {
		t.Fatalf("csrf codec: %v", err)
	}

	orgs := usecase.NewOrganizationService(directory, nil, nil, logger)
	sessions := usecase.NewSessionService(sessionCodec, orgs, usecase.DefaultSessionPolicy(), logger)
	csrf := usecase.NewCSRFService(csrfCodec, sessions, usecase.DefaultCSRFTTL, logger)

	store := cookie.NewStore(cookie.Config{})

	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}
	r := httproutes.Register(httproutes.Dependencies{
		Config:      cfg,
		Logger:      logger,
		CookieStore: store,
		Services: httproutes.ServiceSet{
			Sessions:  sessions,
			CSRF:      csrf,
			Directory: directory,
		},
	})

	return r, store
}

func signIn(t *testing.T, r *gin.Engine) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/callback", jsonBody(`{"code":"good-code"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected callback status 200, got %d: %s", w.Code, w.Body.String())
	}
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookie.DefaultSessionCookieName {
			return ck
		}
	}
	t.Fatalf("session cookie not set by callback")
	return nil
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestSessionRequiresCookie(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestCallbackEstablishesSession(t *testing.T) {
	r, _ := newTestRouter(t)
	ck := signIn(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Subject struct {
			ID string `json:"id"`
		} `json:"subject"`
		CurrentOrganizationID string `json:"current_organization_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if resp.Subject.ID != "subj_01" {
		t.Fatalf("expected subject subj_01, got %s", resp.Subject.ID)
	}
	if resp.CurrentOrganizationID != "org_01" {
		t.Fatalf("expected current organization org_01, got %s", resp.CurrentOrganizationID)
	}
}

func TestCallbackRejectsUnknownCode(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/callback", jsonBody(`{"code":"bad-code"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestMutatingRouteRequiresCSRFToken(t *testing.T) {
	r, _ := newTestRouter(t)
	ck := signIn(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/refresh", nil)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 without csrf token, got %d", w.Code)
	}
}

func TestCSRFIssueAndMutate(t *testing.T) {
	r, _ := newTestRouter(t)
	ck := signIn(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected csrf status 200, got %d: %s", w.Code, w.Body.String())
	}

	var issued struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if issued.Token == "" {
		t.Fatalf("expected non-empty csrf token")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/refresh", nil)
	req.AddCookie(ck)
	req.Header.Set("X-CSRF-Token", issued.Token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected refresh status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSwitchOrganizationRejectsForeignID(t *testing.T) {
	r, _ := newTestRouter(t)
	ck := signIn(t, r)

	token := issueCSRF(t, r, ck)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/organization", jsonBody(`{"organization_id":"org_evil"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	r, _ := newTestRouter(t)
	ck := signIn(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	cleared := false
	for _, respCookie := range w.Result().Cookies() {
		if respCookie.Name == cookie.DefaultSessionCookieName && respCookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie to be cleared")
	}
}

func issueCSRF(t *testing.T, r *gin.Engine, ck *http.Cookie) string {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil)
	req.AddCookie(ck)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected csrf status 200, got %d", w.Code)
	}

	var issued struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return issued.Token
}
