package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ConfigurationLeases = (*Leases)(nil)

const leasePrefix = "applicant-sync:lease:"

// ErrLeaseNotHeld is returned when extending a lease owned by someone else
var ErrLeaseNotHeld = errors.New("lease not held by this instance")

// Leases implements ConfigurationLeases with Redis SET NX and a TTL.
// Each instance has a unique owner ID so it never releases another's lease.
type Leases struct {
	client  *redis.Client
	ownerID string
}

// NewLeases creates Redis-backed configuration leases.
func NewLeases(client *redis.Client) *Leases {
	hostname, _ := os.Hostname()
	return &Leases{
		client:  client,
		ownerID: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()),
	}
}

// Acquire takes the lease atomically. Returns false if it is held elsewhere.
func (l *Leases) Acquire(ctx context.Context, configurationID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, leasePrefix+configurationID, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", configurationID, err)
	}
	return ok, nil
}

// releaseScript deletes the key only if this owner holds it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release gives the lease up if this instance holds it.
func (l *Leases) Release(ctx context.Context, configurationID string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{leasePrefix + configurationID}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", configurationID, err)
	}
	return nil
}

// extendScript renews the TTL only if this owner holds the key
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend renews a lease held by this instance.
func (l *Leases) Extend(ctx context.Context, configurationID string, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{leasePrefix + configurationID}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", configurationID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseNotHeld, configurationID)
	}
	return nil
}

// OwnerID identifies this instance in lease values.
func (l *Leases) OwnerID() string {
	return l.ownerID
}
