// Package smartrecruiters connects to the SmartRecruiters API.
// Requests carry an API key in the X-SmartToken header; lists are paged
// with offset and limit.
package smartrecruiters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/applicant-sync/internal/adapters/driven/connectors/apiclient"
	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Provider = (*Connector)(nil)

const (
	// MaxLimit is the largest page the API serves.
	MaxLimit = 100

	tokenHeader = "X-SmartToken"
)

// Connector implements driven.Provider for SmartRecruiters.
type Connector struct {
	client *apiclient.Client
}

// NewConnector creates a SmartRecruiters connector.
func NewConnector(client *apiclient.Client) *Connector {
	return &Connector{client: client}
}

// Type returns the platform type.
func (c *Connector) Type() domain.PlatformType {
	return domain.PlatformSmartRecruiters
}

// SupportedFetchModes returns the fetch modes SmartRecruiters can serve.
func (c *Connector) SupportedFetchModes() []domain.FetchMode {
	return []domain.FetchMode{domain.FetchModeAPI, domain.FetchModeHybrid}
}

// Authenticate verifies the API key with a one-item job listing. The key
// itself is the token; it carries no expiry.
func (c *Connector) Authenticate(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
	if cfg.Auth.Type != domain.AuthTypeAPIKey {
		return nil, fmt.Errorf("%w: smartrecruiters requires %s, got %q",
			domain.ErrUnsupportedAuthType, domain.AuthTypeAPIKey, cfg.Auth.Type)
	}
	if cfg.Auth.ClientSecret == "" {
		return nil, domain.NewProviderError(domain.ErrorKindAuthentication, "authenticate", errors.New("api key is empty"))
	}

	auth := &domain.AuthResult{AccessToken: cfg.Auth.ClientSecret, TokenType: tokenHeader, SecretIsToken: true}
	var page jobPage
	if err := c.client.GetJSON(ctx, cfg, "authenticate", endpoint(cfg, "/jobs", pageQuery(0, 1)), header(auth), &page); err != nil {
		return nil, err
	}
	return auth, nil
}

type job struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	CandidateCount int    `json:"candidateCount"`
}

type jobPage struct {
	TotalFound int   `json:"totalFound"`
	Content    []job `json:"content"`
}

// CountJobs returns the number of jobs.
func (c *Connector) CountJobs(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult) (int, error) {
	var page jobPage
	if err := c.client.GetJSON(ctx, cfg, "count jobs", endpoint(cfg, "/jobs", pageQuery(0, 1)), header(auth), &page); err != nil {
		return 0, err
	}
	return page.TotalFound, nil
}

// ListJobsPage returns jobs [skip, skip+take).
func (c *Connector) ListJobsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, skip, take int) ([]*domain.ProviderJob, error) {
	var page jobPage
	if err := c.client.GetJSON(ctx, cfg, "list jobs", endpoint(cfg, "/jobs", pageQuery(skip, take)), header(auth), &page); err != nil {
		return nil, err
	}

	jobs := make([]*domain.ProviderJob, 0, len(page.Content))
	for _, j := range page.Content {
		if j.ID == "" {
			return nil, domain.NewProviderError(domain.ErrorKindMalformed, "list jobs", errors.New("job without id"))
		}
		jobs = append(jobs, &domain.ProviderJob{
			ID:               j.ID,
			Title:            j.Title,
			ApplicationCount: j.CandidateCount,
		})
	}
	return jobs, nil
}

type attachment struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

type candidate struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	PhoneNumber string      `json:"phoneNumber"`
	AppliedOn   time.Time   `json:"appliedOn"`
	Resume      *attachment `json:"resume"`
	Summary     string      `json:"summary"`
}

type candidatePage struct {
	TotalFound int         `json:"totalFound"`
	Content    []candidate `json:"content"`
}

// CountApplications returns the number of candidates for a job.
func (c *Connector) CountApplications(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string) (int, error) {
	var page candidatePage
	if err := c.client.GetJSON(ctx, cfg, "count applications", candidatesURL(cfg, jobID, 0, 1), header(auth), &page); err != nil {
		return 0, err
	}
	return page.TotalFound, nil
}

// ListApplicationsPage returns a job's candidates, newest first.
func (c *Connector) ListApplicationsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string, skip, take int) ([]*domain.ProviderApplicationRaw, error) {
	var page candidatePage
	if err := c.client.GetJSON(ctx, cfg, "list applications", candidatesURL(cfg, jobID, skip, take), header(auth), &page); err != nil {
		return nil, err
	}

	apps := make([]*domain.ProviderApplicationRaw, 0, len(page.Content))
	for _, cand := range page.Content {
		raw := &domain.ProviderApplicationRaw{
			ID:          cand.ID,
			JobID:       jobID,
			SubmittedAt: cand.AppliedOn,
			Email:       cand.Email,
			FirstName:   cand.FirstName,
			LastName:    cand.LastName,
			Phone:       cand.PhoneNumber,
			Summary:     cand.Summary,
		}
		if cand.Resume != nil {
			raw.CVURL = cand.Resume.URL
			raw.CVFileName = cand.Resume.FileName
		}
		apps = append(apps, raw)
	}
	return apps, nil
}

// DownloadCV fetches a resume with the API key.
func (c *Connector) DownloadCV(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, cvURL string) ([]byte, error) {
	return c.client.Download(ctx, cfg, cvURL, header(auth))
}

func pageQuery(offset, limit int) url.Values {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func candidatesURL(cfg *domain.ProviderConfiguration, jobID string, offset, limit int) string {
	q := pageQuery(offset, limit)
	q.Set("sort", "-appliedOn")
	return endpoint(cfg, "/jobs/"+url.PathEscape(jobID)+"/candidates", q)
}

func endpoint(cfg *domain.ProviderConfiguration, path string, q url.Values) string {
	u := strings.TrimSuffix(cfg.Auth.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func header(auth *domain.AuthResult) http.Header {
	return http.Header{tokenHeader: {auth.AccessToken}}
}
