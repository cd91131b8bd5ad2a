package domain

import "time"

// Subject is the cached identity snapshot of the authenticated principal.
// The Directory Service owns the record; the session only carries a copy.
type Subject struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
}

// UpstreamCredential holds the opaque tokens issued by the Directory Service
// during authentication. The session is their sole client-side holder.
type UpstreamCredential struct {
	AccessToken  string
	RefreshToken string
}

// Session is the full signed payload carried in the session cookie. It is
// stateless: every mutation produces a new signed token, never an in-place
// update of shared state.
type Session struct {
	Subject               Subject
	Credential            UpstreamCredential
	Organizations         []Organization
	CurrentOrganizationID string
	LastActivity          time.Time
	ExpiresAt             time.Time
	RememberMe            bool
}

// IsExpired reports whether the session's absolute expiry has passed. The
// signed token carries its own expiration claim as well; both must hold.
func (s Session) IsExpired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// HasOrganization reports whether the supplied organization id is among the
// session's cached memberships.
func (s Session) HasOrganization(id string) bool {
	for _, org := range s.Organizations {
		if org.ID == id {
			return true
		}
	}
	return false
}

// CurrentOrganization returns the snapshot referenced by
// CurrentOrganizationID, if any.
func (s Session) CurrentOrganization() (Organization, bool) {
	for _, org := range s.Organizations {
		if org.ID == s.CurrentOrganizationID {
			return org, true
		}
	}
	return Organization{}, false
}

// ReplaceOrganizations swaps the cached membership list and restores the
// invariant that CurrentOrganizationID references an entry of the list: a
// vanished current organization falls back to the first element, or to empty
// when the list itself is empty.
func (s *Session) ReplaceOrganizations(orgs []Organization) {
	s.Organizations = orgs
	if s.HasOrganization(s.CurrentOrganizationID) {
		return
	}
	if len(orgs) > 0 {
		s.CurrentOrganizationID = orgs[0].ID
		return
	}
	s.CurrentOrganizationID = ""
}
