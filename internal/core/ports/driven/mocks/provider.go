package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// MockProvider is an in-memory provider for testing. It serves jobs and
// applications from its dataset with native skip/take paging and counts calls.
type MockProvider struct {
	Platform domain.PlatformType
	Modes    []domain.FetchMode

	// MaxPageSize clamps take like a real platform would (0 = no clamp)
	MaxPageSize int
	// Delay is applied to every CountJobs call
	Delay time.Duration

	AuthenticateFn         func(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error)
	CountJobsFn            func(ctx context.Context, cfg *domain.ProviderConfiguration) (int, error)
	ListApplicationsPageFn func(ctx context.Context, jobID string, skip, take int) ([]*domain.ProviderApplicationRaw, error)
	DownloadCVFn           func(ctx context.Context, url string) ([]byte, error)

	mu           sync.Mutex
	jobs         []*domain.ProviderJob
	applications map[string][]*domain.ProviderApplicationRaw
	cvs          map[string][]byte
	pageErrors   map[string]error

	authCalls      int
	pageCalls      map[string]int
	downloadCalls  int
	inFlight       int
	maxInFlight    int
	downloads      int
	maxDownloads   int
	lastAuthConfig *domain.ProviderConfiguration
}

// NewMockProvider creates an empty provider supporting the api and hybrid modes.
func NewMockProvider(platform domain.PlatformType) *MockProvider {
	return &MockProvider{
		Platform:     platform,
		Modes:        []domain.FetchMode{domain.FetchModeAPI, domain.FetchModeHybrid},
		applications: make(map[string][]*domain.ProviderApplicationRaw),
		cvs:          make(map[string][]byte),
		pageCalls:    make(map[string]int),
		pageErrors:   make(map[string]error),
	}
}

// AddJob adds a job whose application count matches the given applications.
// Applications are kept newest first.
func (m *MockProvider) AddJob(id, title string, apps ...*domain.ProviderApplicationRaw) *domain.ProviderJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, app := range apps {
		app.JobID = id
	}
	sorted := append([]*domain.ProviderApplicationRaw(nil), apps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.After(sorted[j].SubmittedAt)
	})

	job := &domain.ProviderJob{ID: id, Title: title, ApplicationCount: len(sorted)}
	m.jobs = append(m.jobs, job)
	m.applications[id] = sorted
	return job
}

// AddApplication adds an application to an existing job and bumps its count.
func (m *MockProvider) AddApplication(jobID string, app *domain.ProviderApplicationRaw) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app.JobID = jobID
	apps := append(m.applications[jobID], app)
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].SubmittedAt.After(apps[j].SubmittedAt)
	})
	m.applications[jobID] = apps
	for _, job := range m.jobs {
		if job.ID == jobID {
			job.ApplicationCount = len(apps)
		}
	}
}

// SetPageError makes every application page of a job fail with err.
// A nil err clears it.
func (m *MockProvider) SetPageError(jobID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.pageErrors, jobID)
		return
	}
	m.pageErrors[jobID] = err
}

// SetCV registers the bytes served for a CV URL.
func (m *MockProvider) SetCV(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cvs[url] = data
}

// AuthCalls returns the number of Authenticate calls.
func (m *MockProvider) AuthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls
}

// LastAuthConfig returns the configuration passed to the last Authenticate call.
func (m *MockProvider) LastAuthConfig() *domain.ProviderConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthConfig
}

// PageCalls returns the number of application page requests for a job.
func (m *MockProvider) PageCalls(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls[jobID]
}

// DownloadCalls returns the number of DownloadCV calls.
func (m *MockProvider) DownloadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloadCalls
}

// MaxConcurrentSyncs returns the highest number of overlapping CountJobs calls.
func (m *MockProvider) MaxConcurrentSyncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// MaxConcurrentDownloads returns the highest number of overlapping DownloadCV calls.
func (m *MockProvider) MaxConcurrentDownloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDownloads
}

func (m *MockProvider) Type() domain.PlatformType {
	return m.Platform
}

func (m *MockProvider) SupportedFetchModes() []domain.FetchMode {
	return m.Modes
}

func (m *MockProvider) Authenticate(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
	m.mu.Lock()
	m.authCalls++
	cp := *cfg
	m.lastAuthConfig = &cp
	m.mu.Unlock()

	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, cfg)
	}
	return &domain.AuthResult{
		AccessToken: "token-" + cfg.ID,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (m *MockProvider) CountJobs(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult) (int, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if m.CountJobsFn != nil {
		return m.CountJobsFn(ctx, cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *MockProvider) ListJobsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, skip, take int) ([]*domain.ProviderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.jobs, skip, m.clamp(take)), nil
}

func (m *MockProvider) CountApplications(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applications[jobID]), nil
}

func (m *MockProvider) ListApplicationsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string, skip, take int) ([]*domain.ProviderApplicationRaw, error) {
	m.mu.Lock()
	m.pageCalls[jobID]++
	pageErr := m.pageErrors[jobID]
	m.mu.Unlock()

	if pageErr != nil {
		return nil, pageErr
	}

	if m.ListApplicationsPageFn != nil {
		return m.ListApplicationsPageFn(ctx, jobID, skip, take)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	apps := page(m.applications[jobID], skip, m.clamp(take))
	// Hand out copies so callers cannot mutate the dataset.
	out := make([]*domain.ProviderApplicationRaw, len(apps))
	for i, app := range apps {
		cp := *app
		out[i] = &cp
	}
	return out, nil
}

func (m *MockProvider) DownloadCV(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, url string) ([]byte, error) {
	m.mu.Lock()
	m.downloadCalls++
	m.downloads++
	if m.downloads > m.maxDownloads {
		m.maxDownloads = m.downloads
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.downloads--
		m.mu.Unlock()
	}()

	if m.DownloadCVFn != nil {
		return m.DownloadCVFn(ctx, url)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.cvs[url]
	if !ok {
		return nil, domain.NewProviderError(domain.ErrorKindCVDownload, "download cv", errors.New("not found"))
	}
	return data, nil
}

func (m *MockProvider) clamp(take int) int {
	if m.MaxPageSize > 0 && take > m.MaxPageSize {
		return m.MaxPageSize
	}
	return take
}

func page[T any](items []T, skip, take int) []T {
	if skip >= len(items) || take <= 0 {
		return nil
	}
	end := skip + take
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
