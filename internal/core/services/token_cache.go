package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TokenCache = (*TokenCache)(nil)

// TokenCache caches provider tokens per configuration.
//
// Lookups of a valid token take no per-configuration lock. On a miss the
// caller takes a lazily created lock for that configuration only, checks the
// cache again, and authenticates if still needed, so there is at most one
// authentication in flight per configuration.
type TokenCache struct {
	tokens *expirable.LRU[string, *domain.CachedToken]

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted

	opener      driven.SecretOpener
	lockTimeout time.Duration
	expirySkew  time.Duration
	defaultTTL  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// TokenCacheConfig holds configuration for the token cache.
type TokenCacheConfig struct {
	Opener          driven.SecretOpener // Optional: opens sealed client secrets
	Logger          *slog.Logger
	MaxEntries      int           // Maximum cached tokens (default: 1000)
	MaxTTL          time.Duration // Upper bound on how long any token is kept (default: 24h)
	DefaultTokenTTL time.Duration // Lifetime assumed when a token carries no expiry (default: 1h)
	LockTimeout     time.Duration // Max wait for the per-configuration lock (default: 60s)
	ExpirySkew      time.Duration // Tokens this close to expiry are refreshed (default: 30s)
	Now             func() time.Time
}

// NewTokenCache creates a token cache.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	maxTTL := cfg.MaxTTL
	if maxTTL <= 0 {
		maxTTL = 24 * time.Hour
	}

	defaultTTL := cfg.DefaultTokenTTL
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 60 * time.Second
	}

	skew := cfg.ExpirySkew
	if skew < 0 {
		skew = 0
	} else if skew == 0 {
		skew = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &TokenCache{
		locks:       make(map[string]*semaphore.Weighted),
		opener:      cfg.Opener,
		lockTimeout: lockTimeout,
		expirySkew:  skew,
		defaultTTL:  defaultTTL,
		now:         now,
		logger:      logger,
	}
	c.tokens = expirable.NewLRU[string, *domain.CachedToken](maxEntries, func(configurationID string, _ *domain.CachedToken) {
		c.dropIdleLock(configurationID)
	}, maxTTL)
	return c
}

// GetOrAuthenticate returns a valid token for the configuration, calling
// provider.Authenticate only when no valid token is cached.
func (c *TokenCache) GetOrAuthenticate(
	ctx context.Context,
	cfg *domain.ProviderConfiguration,
	provider driven.Provider,
) (_ *domain.AuthResult, err error) {
	if tok, ok := c.lookup(cfg.ID); ok {
		if res, err := c.resolve(tok); err == nil {
			tokenCacheHitsTotal.Inc()
			return res, nil
		}
	}

	lock := c.lockFor(cfg.ID)
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	if err := lock.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: configuration %s", domain.ErrLockTimeout, cfg.ID)
	}
	// Runs after the release below; nothing is cached for a failed configuration.
	defer func() {
		if err != nil {
			c.dropIdleLock(cfg.ID)
		}
	}()
	defer lock.Release(1)

	// Another caller may have authenticated while we waited.
	if tok, ok := c.lookup(cfg.ID); ok {
		if res, err := c.resolve(tok); err == nil {
			tokenCacheHitsTotal.Inc()
			return res, nil
		}
		c.tokens.Remove(cfg.ID)
	}
	tokenCacheMissesTotal.Inc()

	result, err := c.authenticate(ctx, cfg, provider)
	if err != nil {
		authCallsTotal.WithLabelValues(string(cfg.PlatformType), "failure").Inc()
		return nil, err
	}
	authCallsTotal.WithLabelValues(string(cfg.PlatformType), "success").Inc()

	token := &domain.CachedToken{
		ConfigurationID: cfg.ID,
		Value:           result.AccessToken,
		TokenType:       result.TokenType,
		ExpiresAt:       c.resolveExpiry(result),
	}
	if result.SecretIsToken {
		// Keep only the transit form of a secret used as the token.
		token.Value = cfg.Auth.ClientSecret
		token.Sealed = true
	}
	c.tokens.Add(cfg.ID, token)

	c.logger.Debug("provider token cached",
		"configuration_id", cfg.ID,
		"platform", cfg.PlatformType,
		"expires_at", token.ExpiresAt,
	)

	return &domain.AuthResult{
		AccessToken: result.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
	}, nil
}

// Invalidate drops the cached token, e.g. after the provider rejected it.
func (c *TokenCache) Invalidate(configurationID string) {
	c.tokens.Remove(configurationID)
}

func (c *TokenCache) lookup(configurationID string) (*domain.CachedToken, bool) {
	tok, ok := c.tokens.Get(configurationID)
	if !ok || tok.IsExpired(c.now(), c.expirySkew) {
		return nil, false
	}
	return tok, true
}

// resolve turns a cached token into an AuthResult, opening a sealed secret
// for this call only.
func (c *TokenCache) resolve(tok *domain.CachedToken) (*domain.AuthResult, error) {
	res := tok.AuthResult()
	if !tok.Sealed || c.opener == nil {
		return res, nil
	}
	secret, err := c.opener.Open(tok.Value)
	if err != nil {
		c.logger.Warn("failed to open cached secret", "configuration_id", tok.ConfigurationID, "error", err)
		return nil, err
	}
	res.AccessToken = secret
	return res, nil
}

// dropIdleLock forgets a configuration's lock unless someone holds it.
func (c *TokenCache) dropIdleLock(configurationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[configurationID]
	if !ok || !lock.TryAcquire(1) {
		return
	}
	delete(c.locks, configurationID)
	lock.Release(1)
}

// trackedLocks returns the number of per-configuration locks held in memory.
func (c *TokenCache) trackedLocks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}

func (c *TokenCache) lockFor(configurationID string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[configurationID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		c.locks[configurationID] = lock
	}
	return lock
}

// authenticate opens the transit secret and calls the provider. The opened
// secret lives only in the copy handed to the provider.
func (c *TokenCache) authenticate(
	ctx context.Context,
	cfg *domain.ProviderConfiguration,
	provider driven.Provider,
) (*domain.AuthResult, error) {
	authCfg := *cfg
	if c.opener != nil && cfg.Auth.ClientSecret != "" {
		secret, err := c.opener.Open(cfg.Auth.ClientSecret)
		if err != nil {
			return nil, domain.NewProviderError(domain.ErrorKindAuthentication, "open credentials", err)
		}
		authCfg.Auth.ClientSecret = secret
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Auth.Timeout())
	defer cancel()

	result, err := provider.Authenticate(callCtx, &authCfg)
	if err != nil {
		return nil, classifyAuthError(ctx, err)
	}
	if result == nil || result.AccessToken == "" {
		return nil, domain.NewProviderError(domain.ErrorKindAuthentication, "authenticate", errors.New("empty access token"))
	}
	return result, nil
}

// resolveExpiry prefers the provider's stated expiry, then the exp claim of
// a JWT access token, then the default lifetime.
func (c *TokenCache) resolveExpiry(result *domain.AuthResult) time.Time {
	if !result.ExpiresAt.IsZero() {
		return result.ExpiresAt
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(result.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return c.now().Add(c.defaultTTL)
}

// classifyAuthError keeps rate limiting, security violations and
// configuration errors distinct and reports every other authentication
// problem as an authentication failure.
func classifyAuthError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch domain.KindOf(err) {
	case domain.ErrorKindAuthentication, domain.ErrorKindRateLimited,
		domain.ErrorKindSecurity, domain.ErrorKindConfiguration:
		return err
	}
	return domain.NewProviderError(domain.ErrorKindAuthentication, "authenticate", err)
}
