package port

import (
	"context"
	"time"
)

// ProvisionLocker serializes implicit personal-organization creation so that
// two near-simultaneous first sign-ins cannot both provision a tenant for the
// same subject. Acquire returns false when another caller already holds the
// lock; the caller is then expected to re-read memberships rather than create.
type ProvisionLocker interface {
	Acquire(ctx context.Context, subjectID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, subjectID string) error
}
