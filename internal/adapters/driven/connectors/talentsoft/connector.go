// Package talentsoft connects to the Talentsoft recruiting API.
// Authentication is OAuth2 client credentials; lists are paged with a
// 1-indexed pageIndex and a pageSize.
package talentsoft

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

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 100

// Connector implements driven.Provider for Talentsoft.
type Connector struct {
	client *apiclient.Client
}

// NewConnector creates a Talentsoft connector.
func NewConnector(client *apiclient.Client) *Connector {
	return &Connector{client: client}
}

// Type returns the platform type.
func (c *Connector) Type() domain.PlatformType {
	return domain.PlatformTalentsoft
}

// SupportedFetchModes returns the fetch modes Talentsoft can serve.
func (c *Connector) SupportedFetchModes() []domain.FetchMode {
	return []domain.FetchMode{domain.FetchModeAPI}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate exchanges client credentials for a bearer token.
func (c *Connector) Authenticate(ctx context.Context, cfg *domain.ProviderConfiguration) (*domain.AuthResult, error) {
	if cfg.Auth.Type != domain.AuthTypeClientCredentials {
		return nil, fmt.Errorf("%w: talentsoft requires %s, got %q",
			domain.ErrUnsupportedAuthType, domain.AuthTypeClientCredentials, cfg.Auth.Type)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cfg.Auth.ClientID)
	form.Set("client_secret", cfg.Auth.ClientSecret)

	body, err := c.client.Do(ctx, cfg, apiclient.Request{
		Op:     "authenticate",
		Method: http.MethodPost,
		URL:    endpoint(cfg, "/api/token", nil),
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := apiclient.DecodeJSON("authenticate", body, &tok); err != nil {
		return nil, err
	}

	result := &domain.AuthResult{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}
	if tok.ExpiresIn > 0 {
		result.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return result, nil
}

type pagination struct {
	Total int `json:"total"`
}

type vacancy struct {
	Reference        string `json:"reference"`
	Title            string `json:"title"`
	ApplicationCount int    `json:"applicationCount"`
}

type vacancyPage struct {
	Pagination pagination `json:"_pagination"`
	Data       []vacancy  `json:"data"`
}

// CountJobs returns the number of vacancies.
func (c *Connector) CountJobs(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult) (int, error) {
	var page vacancyPage
	if err := c.client.GetJSON(ctx, cfg, "count jobs", endpoint(cfg, "/api/v2/vacancies", pageQuery(1, 1)), bearer(auth), &page); err != nil {
		return 0, err
	}
	return page.Pagination.Total, nil
}

// ListJobsPage returns vacancies [skip, skip+take).
func (c *Connector) ListJobsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, skip, take int) ([]*domain.ProviderJob, error) {
	index, size, offset := toPage(skip, take)

	var page vacancyPage
	if err := c.client.GetJSON(ctx, cfg, "list jobs", endpoint(cfg, "/api/v2/vacancies", pageQuery(index, size)), bearer(auth), &page); err != nil {
		return nil, err
	}

	jobs := make([]*domain.ProviderJob, 0, len(page.Data))
	for _, v := range trim(page.Data, offset) {
		if v.Reference == "" {
			return nil, malformed("list jobs", "vacancy without reference")
		}
		jobs = append(jobs, &domain.ProviderJob{
			ID:               v.Reference,
			Title:            v.Title,
			ApplicationCount: v.ApplicationCount,
		})
	}
	return jobs, nil
}

type applicant struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

type document struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

type application struct {
	ID              string     `json:"id"`
	ApplicationDate time.Time  `json:"applicationDate"`
	Applicant       applicant  `json:"applicant"`
	Documents       []document `json:"documents"`
	CoverLetter     string     `json:"coverLetter"`
}

type applicationPage struct {
	Pagination pagination    `json:"_pagination"`
	Data       []application `json:"data"`
}

// CountApplications returns the number of applications for a vacancy.
func (c *Connector) CountApplications(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string) (int, error) {
	var page applicationPage
	if err := c.client.GetJSON(ctx, cfg, "count applications", applicationsURL(cfg, jobID, 1, 1), bearer(auth), &page); err != nil {
		return 0, err
	}
	return page.Pagination.Total, nil
}

// ListApplicationsPage returns a vacancy's applications, newest first.
func (c *Connector) ListApplicationsPage(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, jobID string, skip, take int) ([]*domain.ProviderApplicationRaw, error) {
	index, size, offset := toPage(skip, take)

	var page applicationPage
	if err := c.client.GetJSON(ctx, cfg, "list applications", applicationsURL(cfg, jobID, index, size), bearer(auth), &page); err != nil {
		return nil, err
	}

	apps := make([]*domain.ProviderApplicationRaw, 0, len(page.Data))
	for _, a := range trim(page.Data, offset) {
		raw := &domain.ProviderApplicationRaw{
			ID:          a.ID,
			JobID:       jobID,
			SubmittedAt: a.ApplicationDate,
			Email:       a.Applicant.Email,
			FirstName:   a.Applicant.FirstName,
			LastName:    a.Applicant.LastName,
			Phone:       a.Applicant.PhoneNumber,
			Summary:     a.CoverLetter,
		}
		for _, d := range a.Documents {
			if strings.EqualFold(d.Type, "cv") && d.URL != "" {
				raw.CVURL = d.URL
				raw.CVFileName = d.FileName
				break
			}
		}
		apps = append(apps, raw)
	}
	return apps, nil
}

// DownloadCV fetches a CV document with the bearer token.
func (c *Connector) DownloadCV(ctx context.Context, cfg *domain.ProviderConfiguration, auth *domain.AuthResult, cvURL string) ([]byte, error) {
	return c.client.Download(ctx, cfg, cvURL, bearer(auth))
}

// toPage maps skip/take onto a 1-indexed page. When skip is not aligned to
// the page size the leading items of the page are dropped.
func toPage(skip, take int) (index, size, offset int) {
	size = take
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}
	return skip/size + 1, size, skip % size
}

func trim[T any](items []T, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	return items[offset:]
}

func pageQuery(index, size int) url.Values {
	q := url.Values{}
	q.Set("pageIndex", strconv.Itoa(index))
	q.Set("pageSize", strconv.Itoa(size))
	return q
}

func applicationsURL(cfg *domain.ProviderConfiguration, jobID string, index, size int) string {
	q := pageQuery(index, size)
	q.Set("sort", "-applicationDate")
	return endpoint(cfg, "/api/v2/vacancies/"+url.PathEscape(jobID)+"/applications", q)
}

func endpoint(cfg *domain.ProviderConfiguration, path string, q url.Values) string {
	u := strings.TrimSuffix(cfg.Auth.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func bearer(auth *domain.AuthResult) http.Header {
	tokenType := "Bearer"
	if auth.TokenType != "" && !strings.EqualFold(auth.TokenType, "bearer") {
		tokenType = auth.TokenType
	}
	return http.Header{"Authorization": {tokenType + " " + auth.AccessToken}}
}

func malformed(op, msg string) error {
	return domain.NewProviderError(domain.ErrorKindMalformed, op, errors.New(msg))
}
