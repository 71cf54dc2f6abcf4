package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestNewLeases_UniqueOwners(t *testing.T) {
	client, _ := setupTestRedis(t)

	a := NewLeases(client)
	b := NewLeases(client)

	if a.OwnerID() == "" {
		t.Fatal("expected non-empty owner ID")
	}
	if a.OwnerID() == b.OwnerID() {
		t.Errorf("expected unique owner IDs, got %s twice", a.OwnerID())
	}
}

func TestLeases_Acquire(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	leases := NewLeases(client)

	ok, err := leases.Acquire(ctx, "cfg-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected lease to be acquired")
	}

	got, err := mr.Get(leasePrefix + "cfg-1")
	if err != nil {
		t.Fatalf("lease key missing: %v", err)
	}
	if got != leases.OwnerID() {
		t.Errorf("expected owner %s, got %s", leases.OwnerID(), got)
	}
	if ttl := mr.TTL(leasePrefix + "cfg-1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestLeases_AcquireHeldElsewhere(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	first := NewLeases(client)
	second := NewLeases(client)

	if ok, _ := first.Acquire(ctx, "cfg-1", time.Minute); !ok {
		t.Fatal("first acquire should succeed")
	}
	ok, err := second.Acquire(ctx, "cfg-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Error("second instance must not take a held lease")
	}

	// Leases are per configuration.
	if ok, _ := second.Acquire(ctx, "cfg-2", time.Minute); !ok {
		t.Error("expected lease on a different configuration")
	}
}

func TestLeases_ExpiredLeaseCanBeTaken(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	first := NewLeases(client)
	second := NewLeases(client)

	_, _ = first.Acquire(ctx, "cfg-1", time.Second)
	mr.FastForward(2 * time.Second)

	if ok, _ := second.Acquire(ctx, "cfg-1", time.Minute); !ok {
		t.Error("expected expired lease to be taken over")
	}
}

func TestLeases_Release(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	leases := NewLeases(client)

	_, _ = leases.Acquire(ctx, "cfg-1", time.Minute)
	if err := leases.Release(ctx, "cfg-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(leasePrefix + "cfg-1") {
		t.Error("expected lease key to be deleted")
	}

	// Releasing again is harmless.
	if err := leases.Release(ctx, "cfg-1"); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestLeases_ReleaseKeepsOtherOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := NewLeases(client)
	other := NewLeases(client)

	_, _ = owner.Acquire(ctx, "cfg-1", time.Minute)
	if err := other.Release(ctx, "cfg-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists(leasePrefix + "cfg-1") {
		t.Error("lease of another owner must survive")
	}
}

func TestLeases_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := NewLeases(client)
	other := NewLeases(client)

	_, _ = owner.Acquire(ctx, "cfg-1", 10*time.Second)
	if err := owner.Extend(ctx, "cfg-1", time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ttl := mr.TTL(leasePrefix + "cfg-1"); ttl <= 10*time.Second {
		t.Errorf("expected ttl to be extended, got %v", ttl)
	}

	err := other.Extend(ctx, "cfg-1", time.Minute)
	if !errors.Is(err, ErrLeaseNotHeld) {
		t.Errorf("expected ErrLeaseNotHeld, got %v", err)
	}
	if err := owner.Extend(ctx, "cfg-missing", time.Minute); !errors.Is(err, ErrLeaseNotHeld) {
		t.Errorf("expected ErrLeaseNotHeld for missing lease, got %v", err)
	}
}
