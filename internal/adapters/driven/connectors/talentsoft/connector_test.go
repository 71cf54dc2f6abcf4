package talentsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors/apiclient"
	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// fakeTalentsoft serves a small vacancy and application dataset
type fakeTalentsoft struct {
	t           *testing.T
	vacancies   []vacancy
	apps        map[string][]application
	tokenStatus int

	mu        sync.Mutex
	lastQuery map[string]string
}

func (f *fakeTalentsoft) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		assert.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "client", r.PostForm.Get("client_id"))
		assert.Equal(f.t, "secret", r.PostForm.Get("client_secret"))
		writeJSON(w, tokenResponse{AccessToken: "tok-1", TokenType: "bearer", ExpiresIn: 3600})
	})
	mux.HandleFunc("GET /api/v2/vacancies", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		index, size := f.page(r)
		writeJSON(w, vacancyPage{Pagination: pagination{Total: len(f.vacancies)}, Data: slice(f.vacancies, index, size)})
	})
	mux.HandleFunc("GET /api/v2/vacancies/{ref}/applications", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		apps := f.apps[r.PathValue("ref")]
		index, size := f.page(r)
		writeJSON(w, applicationPage{Pagination: pagination{Total: len(apps)}, Data: slice(apps, index, size)})
	})
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		w.Write([]byte("cv:" + r.PathValue("name")))
	})
	return mux
}

func (f *fakeTalentsoft) query(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[key]
}

func (f *fakeTalentsoft) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer tok-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeTalentsoft) page(r *http.Request) (int, int) {
	f.mu.Lock()
	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}
	f.mu.Unlock()
	index, _ := strconv.Atoi(r.URL.Query().Get("pageIndex"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return index, size
}

func slice[T any](items []T, index, size int) []T {
	start := (index - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	return items[start:end]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setup(t *testing.T) (*Connector, *fakeTalentsoft, *domain.ProviderConfiguration) {
	t.Helper()
	fake := &fakeTalentsoft{t: t, apps: map[string][]application{}}
	for i := 0; i < 5; i++ {
		fake.vacancies = append(fake.vacancies, vacancy{
			Reference:        fmt.Sprintf("VAC-%d", i),
			Title:            fmt.Sprintf("Vacancy %d", i),
			ApplicationCount: i,
		})
	}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := apiclient.New(apiclient.Config{
		Guard:   apiclient.NewGuard(apiclient.GuardConfig{AllowHTTP: true, AllowPrivate: true}),
		Backoff: time.Millisecond,
	})
	noRetry := 0
	cfg := &domain.ProviderConfiguration{
		ID:           "cfg-1",
		PlatformType: domain.PlatformTalentsoft,
		FetchMode:    domain.FetchModeAPI,
		Enabled:      true,
		Auth: domain.AuthConfiguration{
			Type:         domain.AuthTypeClientCredentials,
			ClientID:     "client",
			ClientSecret: "secret",
			BaseURL:      srv.URL + "/",
			MaxRetries:   &noRetry,
		},
	}
	return NewConnector(client), fake, cfg
}

var validAuth = &domain.AuthResult{AccessToken: "tok-1", TokenType: "bearer"}

func TestConnector_Metadata(t *testing.T) {
	c, _, _ := setup(t)
	assert.Equal(t, domain.PlatformTalentsoft, c.Type())
	assert.Equal(t, []domain.FetchMode{domain.FetchModeAPI}, c.SupportedFetchModes())
}

func TestConnector_Authenticate(t *testing.T) {
	c, _, cfg := setup(t)

	before := time.Now()
	res, err := c.Authenticate(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", res.AccessToken)
	assert.WithinDuration(t, before.Add(time.Hour), res.ExpiresAt, 5*time.Second)
}

func TestConnector_AuthenticateRejected(t *testing.T) {
	c, fake, cfg := setup(t)
	fake.tokenStatus = http.StatusUnauthorized

	_, err := c.Authenticate(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailure)
}

func TestConnector_AuthenticateWrongAuthType(t *testing.T) {
	c, _, cfg := setup(t)
	cfg.Auth.Type = domain.AuthTypeAPIKey

	_, err := c.Authenticate(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrUnsupportedAuthType)
	assert.Equal(t, domain.ErrorKindConfiguration, domain.KindOf(err))
}

func TestConnector_Jobs(t *testing.T) {
	c, fake, cfg := setup(t)
	ctx := context.Background()

	total, err := c.CountJobs(ctx, cfg, validAuth)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	first, err := c.ListJobsPage(ctx, cfg, validAuth, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "VAC-0", first[0].ID)
	assert.Equal(t, "Vacancy 1", first[1].Title)
	assert.Equal(t, 1, first[1].ApplicationCount)

	// skip 3 with pages of 2 is page 2 without its first item
	unaligned, err := c.ListJobsPage(ctx, cfg, validAuth, 3, 2)
	require.NoError(t, err)
	require.Len(t, unaligned, 1)
	assert.Equal(t, "VAC-3", unaligned[0].ID)
	assert.Equal(t, "2", fake.query("pageIndex"))

	_, err = c.ListJobsPage(ctx, cfg, validAuth, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(MaxPageSize), fake.query("pageSize"))
}

func TestConnector_JobWithoutReferenceIsMalformed(t *testing.T) {
	c, fake, cfg := setup(t)
	fake.vacancies[0].Reference = ""

	_, err := c.ListJobsPage(context.Background(), cfg, validAuth, 0, 10)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestConnector_ExpiredTokenIsAuthenticationFailure(t *testing.T) {
	c, _, cfg := setup(t)

	_, err := c.CountJobs(context.Background(), cfg, &domain.AuthResult{AccessToken: "stale"})
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailure)
}

func TestConnector_Applications(t *testing.T) {
	c, fake, cfg := setup(t)
	ctx := context.Background()
	submitted := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	fake.apps["VAC-1"] = []application{
		{
			ID:              "app-2",
			ApplicationDate: submitted,
			Applicant:       applicant{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe", PhoneNumber: "0102"},
			Documents: []document{
				{Type: "coverLetter", URL: cfg.Auth.BaseURL + "files/letter.pdf"},
				{Type: "CV", URL: cfg.Auth.BaseURL + "files/jane.pdf", FileName: "jane.pdf"},
			},
			CoverLetter: "Hello",
		},
		{ID: "app-1", ApplicationDate: submitted.Add(-time.Hour)},
	}

	total, err := c.CountApplications(ctx, cfg, validAuth, "VAC-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	apps, err := c.ListApplicationsPage(ctx, cfg, validAuth, "VAC-1", 0, 50)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "-applicationDate", fake.query("sort"))

	jane := apps[0]
	assert.Equal(t, "app-2", jane.ID)
	assert.Equal(t, "VAC-1", jane.JobID)
	assert.True(t, jane.SubmittedAt.Equal(submitted))
	assert.Equal(t, "jane@example.com", jane.Email)
	assert.Equal(t, "0102", jane.Phone)
	assert.Equal(t, "Hello", jane.Summary)
	assert.Equal(t, cfg.Auth.BaseURL+"files/jane.pdf", jane.CVURL)
	assert.Equal(t, "jane.pdf", jane.CVFileName)
	assert.Empty(t, apps[1].CVURL)
}

func TestConnector_DownloadCV(t *testing.T) {
	c, _, cfg := setup(t)

	data, err := c.DownloadCV(context.Background(), cfg, validAuth, cfg.Auth.BaseURL+"files/jane.pdf")
	require.NoError(t, err)
	assert.Equal(t, "cv:jane.pdf", string(data))

	_, err = c.DownloadCV(context.Background(), cfg, validAuth, "http://evil.example.com/jane.pdf")
	assert.True(t, errors.Is(err, domain.ErrSecurityViolation))
}

func TestToPage(t *testing.T) {
	tests := []struct {
		skip, take                  int
		wantIndex, wantSize, wantOf int
	}{
		{0, 50, 1, 50, 0},
		{50, 50, 2, 50, 0},
		{75, 50, 2, 50, 25},
		{0, 0, 1, MaxPageSize, 0},
		{200, 500, 3, MaxPageSize, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("skip=%d,take=%d", tt.skip, tt.take), func(t *testing.T) {
			index, size, offset := toPage(tt.skip, tt.take)
			assert.Equal(t, tt.wantIndex, index)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantOf, offset)
		})
	}
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "Bearer abc", bearer(&domain.AuthResult{AccessToken: "abc"}).Get("Authorization"))
	assert.Equal(t, "Bearer abc", bearer(&domain.AuthResult{AccessToken: "abc", TokenType: "BEARER"}).Get("Authorization"))
	assert.Equal(t, "MAC abc", bearer(&domain.AuthResult{AccessToken: "abc", TokenType: "MAC"}).Get("Authorization"))
}
