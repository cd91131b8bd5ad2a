package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
	"github.com/stackpilot/teamgate/internal/repository"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.DirectorySettings{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestClient_GetSubject(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/subjects/subj_01" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected authorization header: %s", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "subj_01",
			"email":          "ada@example.com",
			"first_name":     "Ada",
			"last_name":      "Lovelace",
			"email_verified": true,
		})
	}))

	subject, err := client.GetSubject(context.Background(), "subj_01")
	if err != nil {
		t.Fatalf("GetSubject returned error: %v", err)
	}
	if subject.ID != "subj_01" || subject.Email != "ada@example.com" || !subject.EmailVerified {
		t.Fatalf("unexpected subject: %+v", subject)
	}
}

func TestClient_GetSubjectNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if _, err := client.GetSubject(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_ListMembershipsBySubject(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subjects/subj_01/memberships" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Fatalf("unexpected limit: %s", got)
		}
		if got := r.URL.Query().Get("expand"); got != "organization" {
			t.Fatalf("expected organization expansion, got %s", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id":              "mem_1",
					"subject_id":      "subj_01",
					"organization_id": "org_01",
					"role":            "admin",
					"status":          "active",
					"organization": map[string]any{
						"id":       "org_01",
						"name":     "Ada's Team",
						"color":    "#6366F1",
						"personal": true,
					},
				},
			},
		})
	}))

	memberships, err := client.ListMembershipsBySubject(context.Background(), "subj_01", port.Pagination{Limit: 100})
	if err != nil {
		t.Fatalf("ListMembershipsBySubject returned error: %v", err)
	}
	if len(memberships) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(memberships))
	}
	membership := memberships[0]
	if membership.Role != domain.RoleAdmin || membership.Status != domain.MembershipActive {
		t.Fatalf("unexpected membership: %+v", membership)
	}
	if membership.Organization == nil || membership.Organization.Name != "Ada's Team" || !membership.Organization.Personal {
		t.Fatalf("expected embedded organization, got %+v", membership.Organization)
	}
}

func TestClient_CreateOrganization(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/organizations" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["name"] != "Ada's Team" || body["personal"] != true {
			t.Fatalf("unexpected body: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "org_new",
			"name":     body["name"],
			"color":    body["color"],
			"personal": true,
		})
	}))

	org, err := client.CreateOrganization(context.Background(), port.OrganizationSpec{
		Name:     "Ada's Team",
		Color:    domain.DefaultOrganizationColor,
		Personal: true,
	})
	if err != nil {
		t.Fatalf("CreateOrganization returned error: %v", err)
	}
	if org.ID != "org_new" || org.Color != domain.DefaultOrganizationColor {
		t.Fatalf("unexpected organization: %+v", org)
	}
}

func TestClient_CreateMembershipConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	_, err := client.CreateMembership(context.Background(), "subj_01", "org_01", domain.RoleAdmin)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestClient_AuthenticateWithCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/code" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["code"] != "auth-code-123" {
			t.Fatalf("unexpected code: %v", body["code"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"subject": map[string]any{
				"id":    "subj_01",
				"email": "ada@example.com",
			},
			"access_token":  "upstream-access",
			"refresh_token": "upstream-refresh",
		})
	}))

	auth, err := client.AuthenticateWithCode(context.Background(), "auth-code-123")
	if err != nil {
		t.Fatalf("AuthenticateWithCode returned error: %v", err)
	}
	if auth.Subject.ID != "subj_01" || auth.AccessToken != "upstream-access" || auth.RefreshToken != "upstream-refresh" {
		t.Fatalf("unexpected authenticated subject: %+v", auth)
	}
}

func TestClient_ServerErrorIncludesStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "directory exploded", http.StatusInternalServerError)
	}))

	_, err := client.GetOrganization(context.Background(), "org_01")
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "directory exploded") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestClient_DeleteMembership(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/memberships/mem_1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteMembership(context.Background(), "mem_1"); err != nil {
		t.Fatalf("DeleteMembership returned error: %v", err)
	}
}
