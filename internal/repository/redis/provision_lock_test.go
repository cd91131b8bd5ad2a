package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestProvisionLockRepository_AcquireAndRelease(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewProvisionLockRepository(client, "provision")

	ctx := context.Background()
	ttl := 30 * time.Second

	acquired, err := repo.Acquire(ctx, "subj_01", ttl)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if !acquired {
		t.Fatalf("expected first acquire to succeed")
	}

	remaining := server.TTL("provision:subj_01")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}

	acquired, err = repo.Acquire(ctx, "subj_01", ttl)
	if err != nil {
		t.Fatalf("second Acquire returned error: %v", err)
	}
	if acquired {
		t.Fatalf("expected second acquire to fail while lock is held")
	}

	if err := repo.Release(ctx, "subj_01"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	acquired, err = repo.Acquire(ctx, "subj_01", ttl)
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	if !acquired {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestProvisionLockRepository_LockExpires(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewProvisionLockRepository(client, "provision")

	ctx := context.Background()

	if acquired, err := repo.Acquire(ctx, "subj_01", time.Second); err != nil || !acquired {
		t.Fatalf("expected acquire to succeed, got acquired=%v err=%v", acquired, err)
	}

	server.FastForward(2 * time.Second)

	acquired, err := repo.Acquire(ctx, "subj_01", time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if !acquired {
		t.Fatalf("expected acquire to succeed after lock expiry")
	}
}

func TestProvisionLockRepository_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewProvisionLockRepository(client, "")

	if _, err := repo.Acquire(context.Background(), "  ", time.Second); err == nil {
		t.Fatalf("expected error for empty subject id")
	}
	if _, err := repo.Acquire(context.Background(), "subj_01", 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
	if err := repo.Release(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty subject id on release")
	}
}

func TestProvisionLockRepository_DistinctSubjects(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewProvisionLockRepository(client, "provision")

	ctx := context.Background()

	if acquired, err := repo.Acquire(ctx, "subj_01", time.Minute); err != nil || !acquired {
		t.Fatalf("expected acquire for subj_01, got acquired=%v err=%v", acquired, err)
	}
	if acquired, err := repo.Acquire(ctx, "subj_02", time.Minute); err != nil || !acquired {
		t.Fatalf("expected acquire for subj_02, got acquired=%v err=%v", acquired, err)
	}
}
