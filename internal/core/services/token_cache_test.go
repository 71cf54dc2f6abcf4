package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven/mocks"
)

// MockSecretOpener is a mock implementation of driven.SecretOpener
type MockSecretOpener struct {
	mock.Mock
}

func (m *MockSecretOpener) Open(value string) (string, error) {
	args := m.Called(value)
	return args.String(0), args.Error(1)
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(id string) *domain.ProviderConfiguration {
	return &domain.ProviderConfiguration{
		ID:           id,
		TenantID:     "tenant-1",
		PlatformType: domain.PlatformTalentsoft,
		FetchMode:    domain.FetchModeAPI,
		Enabled:      true,
		Auth: domain.AuthConfiguration{
			Type:         domain.AuthTypeClientCredentials,
			ClientID:     "client",
			ClientSecret: "secret",
			BaseURL:      "https://acme.talent-soft.com",
		},
	}
}

func TestTokenCache_ReusesValidToken(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	cache := NewTokenCache(TokenCacheConfig{})
	cfg := testConfig("cfg-1")

	first, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	second, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.AuthCalls())
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, "token-cfg-1", second.AccessToken)
}

func TestTokenCache_SingleFlightPerConfiguration(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		time.Sleep(50 * time.Millisecond)
		return &domain.AuthResult{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{})
	cfg := testConfig("cfg-1")

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
			if err != nil || res.AccessToken != "tok" {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, provider.AuthCalls())
}

func TestTokenCache_ConfigurationsAuthenticateIndependently(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	release := make(chan struct{})
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		if cfg.ID == "slow" {
			<-release
		}
		return &domain.AuthResult{AccessToken: "tok-" + cfg.ID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.GetOrAuthenticate(context.Background(), testConfig("slow"), provider)
	}()

	// A slow configuration must not block another one.
	res, err := cache.GetOrAuthenticate(context.Background(), testConfig("fast"), provider)
	require.NoError(t, err)
	assert.Equal(t, "tok-fast", res.AccessToken)

	close(release)
	<-done
	assert.Equal(t, 2, provider.AuthCalls())
}

func TestTokenCache_FailureIsNotCached(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	var calls atomic.Int32
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		if calls.Add(1) == 1 {
			return nil, domain.NewProviderError(domain.ErrorKindAuthentication, "authenticate", errors.New("bad credentials"))
		}
		return &domain.AuthResult{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{})
	cfg := testConfig("cfg-1")

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailure)

	res, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, "tok", res.AccessToken)
	assert.Equal(t, 2, provider.AuthCalls())
}

func TestTokenCache_RefreshesExpiredToken(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		return &domain.AuthResult{AccessToken: "tok", ExpiresAt: clock.Now().Add(5 * time.Minute)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{Now: clock.Now})
	cfg := testConfig("cfg-1")

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	_, err = cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.AuthCalls(), "token still valid")

	// Within the 30s skew of expiry
	clock.Advance(40 * time.Second)
	_, err = cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.AuthCalls(), "token about to expire is refreshed")
}

func TestTokenCache_ExpiryFromJWTClaim(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	exp := clock.Now().Add(10 * time.Minute)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "client",
		"exp": exp.Unix(),
	}).SignedString([]byte("provider-key"))
	require.NoError(t, err)

	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		return &domain.AuthResult{AccessToken: access, TokenType: "Bearer"}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{Now: clock.Now, DefaultTokenTTL: time.Hour})

	res, err := cache.GetOrAuthenticate(context.Background(), testConfig("cfg-1"), provider)
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.Equal(exp), "expected %s, got %s", exp, res.ExpiresAt)

	clock.Advance(11 * time.Minute)
	_, err = cache.GetOrAuthenticate(context.Background(), testConfig("cfg-1"), provider)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.AuthCalls())
}

func TestTokenCache_DefaultTTLForOpaqueToken(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	provider := mocks.NewMockProvider(domain.PlatformSmartRecruiters)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		return &domain.AuthResult{AccessToken: "opaque-api-key"}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{Now: clock.Now, DefaultTokenTTL: 20 * time.Minute})

	res, err := cache.GetOrAuthenticate(context.Background(), testConfig("cfg-1"), provider)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(20*time.Minute), res.ExpiresAt)
}

func TestTokenCache_LockTimeout(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	started := make(chan struct{})
	release := make(chan struct{})
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		close(started)
		<-release
		return &domain.AuthResult{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{LockTimeout: 50 * time.Millisecond})
	cfg := testConfig("cfg-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.GetOrAuthenticate(context.Background(), cfg, provider)
	}()
	<-started

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Equal(t, domain.ErrorKindTransient, domain.KindOf(err))

	close(release)
	<-done
	assert.Equal(t, 1, provider.AuthCalls())
}

func TestTokenCache_ContextCancelledWhileWaiting(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	started := make(chan struct{})
	release := make(chan struct{})
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		close(started)
		<-release
		return &domain.AuthResult{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{})
	cfg := testConfig("cfg-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.GetOrAuthenticate(context.Background(), cfg, provider)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.GetOrAuthenticate(ctx, cfg, provider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestTokenCache_Invalidate(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	cache := NewTokenCache(TokenCacheConfig{})
	cfg := testConfig("cfg-1")

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	cache.Invalidate(cfg.ID)
	_, err = cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)

	assert.Equal(t, 2, provider.AuthCalls())
}

func TestTokenCache_OpensSealedSecret(t *testing.T) {
	opener := new(MockSecretOpener)
	opener.On("Open", "sealed:abc").Return("plain-secret", nil)

	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	cache := NewTokenCache(TokenCacheConfig{Opener: opener})
	cfg := testConfig("cfg-1")
	cfg.Auth.ClientSecret = "sealed:abc"

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)

	opener.AssertExpectations(t)
	assert.Equal(t, "plain-secret", provider.LastAuthConfig().Auth.ClientSecret)
	assert.Equal(t, "sealed:abc", cfg.Auth.ClientSecret, "caller's configuration is untouched")
}

func TestTokenCache_OpenFailureIsAuthenticationFailure(t *testing.T) {
	opener := new(MockSecretOpener)
	opener.On("Open", mock.Anything).Return("", errors.New("bad seal"))

	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	cache := NewTokenCache(TokenCacheConfig{Opener: opener})

	_, err := cache.GetOrAuthenticate(context.Background(), testConfig("cfg-1"), provider)

	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindAuthentication, domain.KindOf(err))
	assert.Zero(t, provider.AuthCalls())
}

func TestTokenCache_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.AuthResult
		err    error
		want   domain.ErrorKind
	}{
		{
			name: "rate limited kept",
			err:  domain.NewProviderError(domain.ErrorKindRateLimited, "authenticate", nil),
			want: domain.ErrorKindRateLimited,
		},
		{
			name: "security violation kept",
			err:  domain.NewProviderError(domain.ErrorKindSecurity, "url guard", nil),
			want: domain.ErrorKindSecurity,
		},
		{
			name: "unsupported auth type kept as configuration",
			err:  domain.ErrUnsupportedAuthType,
			want: domain.ErrorKindConfiguration,
		},
		{
			name: "transient becomes authentication failure",
			err:  domain.NewProviderError(domain.ErrorKindTransient, "authenticate", nil),
			want: domain.ErrorKindAuthentication,
		},
		{
			name: "plain error becomes authentication failure",
			err:  errors.New("boom"),
			want: domain.ErrorKindAuthentication,
		},
		{
			name:   "empty token",
			result: &domain.AuthResult{},
			want:   domain.ErrorKindAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
			provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
				return tt.result, tt.err
			}
			cache := NewTokenCache(TokenCacheConfig{})

			_, err := cache.GetOrAuthenticate(context.Background(), testConfig("cfg-1"), provider)

			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}

func TestTokenCache_SecretTokenIsCachedSealed(t *testing.T) {
	opener := new(MockSecretOpener)
	opener.On("Open", "sealed:key").Return("plain-key", nil)

	provider := mocks.NewMockProvider(domain.PlatformSmartRecruiters)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		return &domain.AuthResult{AccessToken: cfg.Auth.ClientSecret, TokenType: "X-SmartToken", SecretIsToken: true}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{Opener: opener})
	cfg := testConfig("cfg-1")
	cfg.Auth.ClientSecret = "sealed:key"

	first, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, "plain-key", first.AccessToken)

	cached, ok := cache.tokens.Get("cfg-1")
	require.True(t, ok)
	assert.True(t, cached.Sealed)
	assert.Equal(t, "sealed:key", cached.Value, "only the transit form is kept")

	second, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, "plain-key", second.AccessToken)
	assert.Equal(t, 1, provider.AuthCalls())
	opener.AssertNumberOfCalls(t, "Open", 2)
}

func TestTokenCache_SealedTokenThatNoLongerOpensIsReplaced(t *testing.T) {
	opener := new(MockSecretOpener)
	opener.On("Open", "sealed:key").Return("plain-key", nil).Once()
	opener.On("Open", "sealed:key").Return("", errors.New("key rotated")).Twice()
	opener.On("Open", "sealed:key").Return("plain-key", nil)

	provider := mocks.NewMockProvider(domain.PlatformSmartRecruiters)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		return &domain.AuthResult{AccessToken: cfg.Auth.ClientSecret, SecretIsToken: true}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{Opener: opener})
	cfg := testConfig("cfg-1")
	cfg.Auth.ClientSecret = "sealed:key"

	_, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)

	res, err := cache.GetOrAuthenticate(context.Background(), cfg, provider)
	require.NoError(t, err)
	assert.Equal(t, "plain-key", res.AccessToken)
	assert.Equal(t, 2, provider.AuthCalls())
}

func TestTokenCache_LocksFollowCachedTokens(t *testing.T) {
	provider := mocks.NewMockProvider(domain.PlatformTalentsoft)
	provider.AuthenticateFn = func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
		if cfg.ID == "cfg-bad" {
			return nil, domain.NewProviderError(domain.ErrorKindAuthentication, "authenticate", errors.New("invalid_client"))
		}
		return &domain.AuthResult{AccessToken: "tok-" + cfg.ID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	cache := NewTokenCache(TokenCacheConfig{MaxEntries: 2})
	ctx := context.Background()

	for _, id := range []string{"cfg-1", "cfg-2", "cfg-3"} {
		_, err := cache.GetOrAuthenticate(ctx, testConfig(id), provider)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.trackedLocks(), "evicted token takes its lock along")

	_, err := cache.GetOrAuthenticate(ctx, testConfig("cfg-bad"), provider)
	require.Error(t, err)
	assert.Equal(t, 2, cache.trackedLocks(), "failed configuration keeps no lock")

	cache.Invalidate("cfg-3")
	assert.Equal(t, 1, cache.trackedLocks())
}
