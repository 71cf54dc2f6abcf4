package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

const reportTimeout = 10 * time.Second

// SyncOrchestrator runs incremental sync attempts for provider configurations.
// Each attempt follows the same flow:
//  1. Authenticate through the token cache
//  2. Collect every job
//  3. Skip jobs whose application count did not grow
//  4. Page each changed job's applications, newest first, until the boundary
//  5. Normalize and download CVs with bounded concurrency
//  6. Emit the job's fresh applications downstream
//  7. Advance the sync state and report it
type SyncOrchestrator struct {
	registry  driven.ProviderRegistry
	tokens    driven.TokenCache
	blobs     driven.BlobStore
	publisher driven.ApplicationPublisher
	reporter  driven.StateReporter
	leases    driven.ConfigurationLeases
	logger    *slog.Logger
	now       func() time.Time

	leaseTTL                 time.Duration
	maxConcurrentConfigs     int
	maxConcurrentCVDownloads int
	jobPageSize              int
	applicationPageSize      int
	staleDays                int
	maxTrackedJobs           int
}

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	Registry  driven.ProviderRegistry
	Tokens    driven.TokenCache
	Blobs     driven.BlobStore
	Publisher driven.ApplicationPublisher
	Reporter  driven.StateReporter
	Leases    driven.ConfigurationLeases // Optional: one attempt per configuration across workers
	Logger    *slog.Logger
	Now       func() time.Time

	LeaseTTL                 time.Duration // Lease lifetime, renewed while the attempt runs (default: 10m)

	MaxConcurrentConfigs     int // Configurations synced at once per batch (default: 5)
	MaxConcurrentCVDownloads int // CV downloads at once per job (default: 3)
	JobPageSize              int // default: 100
	ApplicationPageSize      int // default: 50
	StaleDays                int // Jobs unseen for longer are forgotten (default: 90)
	MaxTrackedJobs           int // Cap on tracked jobs per configuration (default: 5000)
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}

	return &SyncOrchestrator{
		registry:                 cfg.Registry,
		tokens:                   cfg.Tokens,
		blobs:                    cfg.Blobs,
		publisher:                cfg.Publisher,
		reporter:                 cfg.Reporter,
		leases:                   cfg.Leases,
		logger:                   logger,
		now:                      now,
		leaseTTL:                 leaseTTL,
		maxConcurrentConfigs:     positiveOr(cfg.MaxConcurrentConfigs, 5),
		maxConcurrentCVDownloads: positiveOr(cfg.MaxConcurrentCVDownloads, 3),
		jobPageSize:              positiveOr(cfg.JobPageSize, 100),
		applicationPageSize:      positiveOr(cfg.ApplicationPageSize, 50),
		staleDays:                positiveOr(cfg.StaleDays, domain.DefaultStaleDays),
		maxTrackedJobs:           positiveOr(cfg.MaxTrackedJobs, domain.DefaultMaxTrackedJobs),
	}
}

// SyncBatch syncs every enabled configuration of a trigger. Configurations
// run concurrently up to the configured limit and fail independently.
// Disabled items are skipped and produce no update, as are configurations
// whose lease is held by another worker.
func (o *SyncOrchestrator) SyncBatch(ctx context.Context, msg *domain.TriggerMessage) []*domain.StateUpdate {
	if msg == nil || len(msg.Items) == 0 {
		return nil
	}

	o.logger.Info("sync batch received", "message_id", msg.ID, "items", len(msg.Items))

	results := make([]*domain.StateUpdate, len(msg.Items))
	var g errgroup.Group
	g.SetLimit(o.maxConcurrentConfigs)

	for i, item := range msg.Items {
		cfg := item.Configuration()
		if !cfg.Enabled {
			o.logger.Info("skipping disabled configuration",
				"configuration_id", cfg.ID,
				"tenant_id", cfg.TenantID,
			)
			continue
		}
		g.Go(func() error {
			results[i] = o.syncLeased(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()

	updates := make([]*domain.StateUpdate, 0, len(results))
	for _, u := range results {
		if u != nil {
			updates = append(updates, u)
		}
	}
	return updates
}

// syncLeased runs SyncConfiguration under the configuration's lease.
// Without a lease store, or when the store is unreachable, it runs unguarded.
func (o *SyncOrchestrator) syncLeased(ctx context.Context, cfg *domain.ProviderConfiguration) *domain.StateUpdate {
	if o.leases == nil {
		return o.SyncConfiguration(ctx, cfg)
	}

	acquired, err := o.leases.Acquire(ctx, cfg.ID, o.leaseTTL)
	if err != nil {
		o.logger.Warn("lease unavailable, syncing without it",
			"configuration_id", cfg.ID,
			"error", err,
		)
		return o.SyncConfiguration(ctx, cfg)
	}
	if !acquired {
		o.logger.Info("configuration already syncing elsewhere, skipping",
			"configuration_id", cfg.ID,
			"tenant_id", cfg.TenantID,
		)
		return nil
	}

	renewCtx, stopRenew := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		o.renewLease(renewCtx, cfg.ID)
	}()
	defer func() {
		stopRenew()
		<-renewed
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		if err := o.leases.Release(releaseCtx, cfg.ID); err != nil {
			o.logger.Warn("failed to release lease", "configuration_id", cfg.ID, "error", err)
		}
	}()

	return o.SyncConfiguration(ctx, cfg)
}

// renewLease extends the lease at a third of its lifetime until ctx is done.
func (o *SyncOrchestrator) renewLease(ctx context.Context, configurationID string) {
	ticker := time.NewTicker(o.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.leases.Extend(ctx, configurationID, o.leaseTTL); err != nil && ctx.Err() == nil {
				o.logger.Warn("failed to extend lease", "configuration_id", configurationID, "error", err)
			}
		}
	}
}

// SyncConfiguration runs one attempt for a configuration and reports the
// resulting state, whether the attempt succeeded or not.
func (o *SyncOrchestrator) SyncConfiguration(ctx context.Context, cfg *domain.ProviderConfiguration) (update *domain.StateUpdate) {
	startTime := o.now()
	logger := o.logger.With(
		"configuration_id", cfg.ID,
		"tenant_id", cfg.TenantID,
		"platform", cfg.PlatformType,
	)
	logger.Info("starting sync")

	var stats domain.SyncStats
	defer func() {
		if r := recover(); r != nil {
			update = o.failSync(ctx, cfg, logger, startTime, stats, fmt.Errorf("sync panicked: %v", r))
		}
	}()

	state, err := o.attempt(ctx, cfg, logger, &stats)
	if err != nil {
		return o.failSync(ctx, cfg, logger, startTime, stats, err)
	}

	completedAt := o.now()
	duration := completedAt.Sub(startTime).Seconds()
	update = &domain.StateUpdate{
		MessageID:       domain.NewMessageID(),
		ConfigurationID: cfg.ID,
		TenantID:        cfg.TenantID,
		Success:         true,
		SyncState:       state,
		Stats:           stats,
		DurationSeconds: duration,
		CompletedAt:     completedAt,
	}

	syncAttemptsTotal.WithLabelValues(string(cfg.PlatformType), "success").Inc()
	syncDuration.WithLabelValues(string(cfg.PlatformType)).Observe(duration)

	logger.Info("sync completed",
		"duration_seconds", duration,
		"jobs_discovered", stats.JobsDiscovered,
		"jobs_changed", stats.JobsChanged,
		"jobs_failed", stats.JobsFailed,
		"applications_fetched", stats.ApplicationsFetched,
		"applications_emitted", stats.ApplicationsEmitted,
		"cv_download_failures", stats.CVDownloadFailures,
	)

	o.report(ctx, update, logger)
	return update
}

// attempt syncs every changed job and returns the state to commit.
// The input configuration's state is never mutated.
func (o *SyncOrchestrator) attempt(
	ctx context.Context,
	cfg *domain.ProviderConfiguration,
	logger *slog.Logger,
	stats *domain.SyncStats,
) (domain.SyncState, error) {
	if err := cfg.Validate(); err != nil {
		return domain.SyncState{}, err
	}
	if !cfg.FetchMode.UsesAPI() {
		return domain.SyncState{}, fmt.Errorf("%w: %q does not use the platform api", domain.ErrUnsupportedFetchMode, cfg.FetchMode)
	}

	provider, err := o.registry.Resolve(cfg.PlatformType)
	if err != nil {
		return domain.SyncState{}, err
	}
	if !driven.SupportsFetchMode(provider, cfg.FetchMode) {
		return domain.SyncState{}, fmt.Errorf("%w: %s does not support %q", domain.ErrUnsupportedFetchMode, cfg.PlatformType, cfg.FetchMode)
	}

	auth, err := o.tokens.GetOrAuthenticate(ctx, cfg, provider)
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("authenticate: %w", err)
	}

	jobs, err := collectJobs(ctx, provider, cfg, auth, o.jobPageSize)
	if err != nil {
		o.invalidateOnAuthFailure(cfg, err)
		return domain.SyncState{}, err
	}
	stats.JobsDiscovered = len(jobs)

	seenAt := o.now()
	state := cfg.SyncState.Clone()
	touched := make(map[string]int, len(jobs))

	var maxDate time.Time
	var idsAtMax []string

	for _, job := range jobs {
		// Unchanged jobs are only touched.
		if !domain.JobChanged(cfg.SyncState, job.ID, job.ApplicationCount) {
			touched[job.ID] = job.ApplicationCount
			continue
		}
		stats.JobsChanged++

		emitted, err := o.syncJob(ctx, provider, cfg, auth, job, logger, stats)
		if err != nil {
			if domain.KindOf(err) != domain.ErrorKindMalformed {
				o.invalidateOnAuthFailure(cfg, err)
				return domain.SyncState{}, fmt.Errorf("job %s: %w", job.ID, err)
			}
			stats.JobsFailed++
			state.RecordError(o.now(), domain.ErrorKindMalformed, fmt.Sprintf("job %s: %v", job.ID, err))
			logger.Warn("skipping job after malformed response",
				"job_id", job.ID,
				"error", err,
				"sample", responseSample(err),
			)
			continue
		}
		touched[job.ID] = job.ApplicationCount

		for _, app := range emitted {
			switch {
			case app.SubmittedAt.After(maxDate):
				maxDate = app.SubmittedAt
				idsAtMax = []string{app.ExternalID}
			case app.SubmittedAt.Equal(maxDate):
				idsAtMax = append(idsAtMax, app.ExternalID)
			}
		}
	}

	state = domain.TouchJobs(state, touched, seenAt)
	if stats.JobsFailed == 0 {
		state = domain.Advance(state, maxDate, idsAtMax)
	} else {
		// Skipped jobs are rescanned from the prior boundary.
		logger.Info("holding dedup boundary after skipped jobs", "jobs_failed", stats.JobsFailed)
	}
	state = domain.PruneStale(state, seenAt, o.staleDays, o.maxTrackedJobs)
	state.MarkSucceeded(o.now(), stats.ApplicationsEmitted)
	return state, nil
}

// syncJob fetches, normalizes and emits one job's fresh applications.
func (o *SyncOrchestrator) syncJob(
	ctx context.Context,
	provider driven.Provider,
	cfg *domain.ProviderConfiguration,
	auth *domain.AuthResult,
	job *domain.ProviderJob,
	logger *slog.Logger,
	stats *domain.SyncStats,
) ([]*domain.ProviderApplication, error) {
	scan, err := scanApplications(ctx, provider, cfg, auth, job.ID, cfg.SyncState, o.applicationPageSize)
	if err != nil {
		return nil, err
	}
	stats.ApplicationsFetched += scan.Fetched

	logger.Debug("job scanned",
		"job_id", job.ID,
		"pages", scan.Pages,
		"fetched", scan.Fetched,
		"fresh", len(scan.Fresh),
		"reached_boundary", scan.Terminated,
	)

	if len(scan.Fresh) == 0 {
		return nil, nil
	}

	apps := make([]*domain.ProviderApplication, len(scan.Fresh))
	for i, raw := range scan.Fresh {
		apps[i] = domain.NormalizeApplication(cfg, job, raw)
	}

	stats.CVDownloadFailures += o.downloadCVs(ctx, provider, cfg, auth, apps, logger)

	if err := o.publisher.PublishApplications(ctx, apps); err != nil {
		return nil, fmt.Errorf("publish applications: %w", err)
	}
	stats.ApplicationsEmitted += len(apps)
	applicationsEmittedTotal.WithLabelValues(string(cfg.PlatformType)).Add(float64(len(apps)))

	return apps, nil
}

// downloadCVs stores each application's CV, at most maxConcurrentCVDownloads
// at a time. A failed download drops the CV and keeps the application.
func (o *SyncOrchestrator) downloadCVs(
	ctx context.Context,
	provider driven.Provider,
	cfg *domain.ProviderConfiguration,
	auth *domain.AuthResult,
	apps []*domain.ProviderApplication,
	logger *slog.Logger,
) int {
	var failures atomic.Int32
	var g errgroup.Group
	g.SetLimit(o.maxConcurrentCVDownloads)

	for _, app := range apps {
		if app.SourceCVURL() == "" {
			continue
		}
		g.Go(func() error {
			if err := o.fetchCV(ctx, provider, cfg, auth, app); err != nil {
				failures.Add(1)
				cvDownloadFailuresTotal.WithLabelValues(string(cfg.PlatformType)).Inc()
				app.DropCV(fmt.Sprintf("cv download failed: %s", domain.KindOf(err)))
				logger.Warn("cv download failed",
					"application_id", app.ExternalID,
					"job_id", app.ExternalJobID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failures.Load())
}

func (o *SyncOrchestrator) fetchCV(
	ctx context.Context,
	provider driven.Provider,
	cfg *domain.ProviderConfiguration,
	auth *domain.AuthResult,
	app *domain.ProviderApplication,
) error {
	if o.blobs == nil {
		return domain.NewProviderError(domain.ErrorKindCVDownload, "store cv", errors.New("no blob store configured"))
	}

	data, err := provider.DownloadCV(ctx, cfg, auth, app.SourceCVURL())
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return domain.NewProviderError(domain.ErrorKindCVDownload, "download cv", errors.New("empty document"))
	}

	location, err := o.blobs.Put(ctx, &driven.Blob{
		TenantID:        cfg.TenantID,
		ConfigurationID: cfg.ID,
		ApplicationID:   app.ExternalID,
		FileName:        app.CVFileName,
		ContentType:     http.DetectContentType(data),
		Data:            data,
	})
	if err != nil {
		return domain.NewProviderError(domain.ErrorKindCVDownload, "store cv", err)
	}
	app.AttachCV(location)
	return nil
}

// failSync builds and reports a failed update from the unchanged input state.
func (o *SyncOrchestrator) failSync(
	ctx context.Context,
	cfg *domain.ProviderConfiguration,
	logger *slog.Logger,
	startTime time.Time,
	stats domain.SyncStats,
	err error,
) *domain.StateUpdate {
	kind := domain.KindOf(err)
	completedAt := o.now()
	duration := completedAt.Sub(startTime).Seconds()

	state := cfg.SyncState.Clone()
	state.MarkFailed(completedAt, kind, err.Error())

	update := &domain.StateUpdate{
		MessageID:       domain.NewMessageID(),
		ConfigurationID: cfg.ID,
		TenantID:        cfg.TenantID,
		Success:         false,
		Error:           err.Error(),
		ErrorKind:       kind,
		SyncState:       state,
		Stats:           stats,
		DurationSeconds: duration,
		CompletedAt:     completedAt,
	}

	syncAttemptsTotal.WithLabelValues(string(cfg.PlatformType), string(kind)).Inc()
	syncDuration.WithLabelValues(string(cfg.PlatformType)).Observe(duration)

	logger.Error("sync failed",
		"error", err,
		"error_kind", kind,
		"consecutive_failures", state.ConsecutiveFailureCount,
		"duration_seconds", duration,
	)

	o.report(ctx, update, logger)
	return update
}

// report sends the update even when the attempt's context is already done.
func (o *SyncOrchestrator) report(ctx context.Context, update *domain.StateUpdate, logger *slog.Logger) {
	if o.reporter == nil {
		return
	}
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := o.reporter.ReportState(reportCtx, update); err != nil {
		logger.Error("failed to report sync state", "message_id", update.MessageID, "error", err)
	}
}

func (o *SyncOrchestrator) invalidateOnAuthFailure(cfg *domain.ProviderConfiguration, err error) {
	if errors.Is(err, domain.ErrAuthenticationFailure) {
		o.tokens.Invalidate(cfg.ID)
	}
}

func responseSample(err error) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.Sample
	}
	return ""
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
