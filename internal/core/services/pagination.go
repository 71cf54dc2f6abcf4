package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// collectJobs pages through every job of a configuration.
// Pages advance by the number of items returned, so providers that clamp
// the page size are still read to the end.
func collectJobs(
	ctx context.Context,
	p driven.Provider,
	cfg *domain.ProviderConfiguration,
	auth *domain.AuthResult,
	pageSize int,
) ([]*domain.ProviderJob, error) {
	total, err := p.CountJobs(ctx, cfg, auth)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	jobs := make([]*domain.ProviderJob, 0, total)
	for skip := 0; skip < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.ListJobsPage(ctx, cfg, auth, skip, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list jobs at offset %d: %w", skip, err)
		}
		if len(page) == 0 {
			break
		}
		jobs = append(jobs, page...)
		skip += len(page)
	}
	return jobs, nil
}

// applicationScan is the result of paging one job's applications
type applicationScan struct {
	Fresh      []*domain.ProviderApplicationRaw
	Fetched    int
	Pages      int
	Terminated bool
}

// scanApplications pages a job's applications, newest first, keeping those
// not yet processed. Paging stops after the first page that contains an
// application older than the dedup boundary: the feed is descending, so
// every later page is older too.
func scanApplications(
	ctx context.Context,
	p driven.Provider,
	cfg *domain.ProviderConfiguration,
	auth *domain.AuthResult,
	jobID string,
	state domain.SyncState,
	pageSize int,
) (*applicationScan, error) {
	total, err := p.CountApplications(ctx, cfg, auth, jobID)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}

	scan := &applicationScan{}
	seen := make(map[string]struct{})
	for skip := 0; skip < total && !scan.Terminated; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.ListApplicationsPage(ctx, cfg, auth, jobID, skip, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list applications at offset %d: %w", skip, err)
		}
		if len(page) == 0 {
			break
		}
		scan.Pages++
		scan.Fetched += len(page)

		for _, app := range page {
			if app.ID == "" || app.SubmittedAt.IsZero() {
				return nil, domain.NewProviderError(domain.ErrorKindMalformed, "list applications",
					errors.New("application without id or submission time"))
			}
			if domain.IsBeyondBoundary(app.SubmittedAt, state) {
				scan.Terminated = true
				continue
			}
			if _, dup := seen[app.ID]; dup {
				continue
			}
			if domain.IsNew(app.ID, app.SubmittedAt, state) {
				seen[app.ID] = struct{}{}
				scan.Fresh = append(scan.Fresh, app)
			}
		}
		skip += len(page)
	}
	return scan, nil
}
