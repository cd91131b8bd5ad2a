package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/stackpilot/teamgate/internal/core/port"
)

const defaultProvisionPrefix = "provision"

// ProvisionLockRepository serializes personal-organization provisioning per
// subject using a Redis SET NX lock. The lock carries a TTL so a crashed
// holder cannot block provisioning forever.
type ProvisionLockRepository struct {
	client *red.Client
	prefix string
}

// NewProvisionLockRepository constructs a lock repository with the provided
// Redis client and key prefix.
func NewProvisionLockRepository(client *red.Client, keyPrefix string) *ProvisionLockRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultProvisionPrefix
	}

	return &ProvisionLockRepository{client: client, prefix: prefix}
}

// Acquire attempts to take the provisioning lock for the subject. A false
// result without error means another request holds it.
func (r *ProvisionLockRepository) Acquire(ctx context.Context, subjectID string, ttl time.Duration) (bool, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return false, errors.New("subject id is required")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}

	acquired, err := r.client.SetNX(ctx, r.key(subjectID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx provision lock: %w", err)
	}

	return acquired, nil
}

// Release drops the lock. Releasing a lock that already expired is not an
// error.
func (r *ProvisionLockRepository) Release(ctx context.Context, subjectID string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return errors.New("subject id is required")
	}

	if err := r.client.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("redis del provision lock: %w", err)
	}

	return nil
}

func (r *ProvisionLockRepository) key(subjectID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, subjectID)
}

var _ port.ProvisionLocker = (*ProvisionLockRepository)(nil)
