package domain

import "time"

const (
	// DefaultMaxTrackedJobs caps SyncState.JobSyncInfos
	DefaultMaxTrackedJobs = 5000

	// DefaultStaleDays prunes jobs not seen for this many days
	DefaultStaleDays = 90

	// MaxRecentErrors is the capacity of SyncState.RecentErrors
	MaxRecentErrors = 10
)

// JobSyncInfo tracks what was last observed for one external job
type JobSyncInfo struct {
	ApplicationCount int       `json:"application_count"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// SyncError is one entry of the bounded recent error log
type SyncError struct {
	At      time.Time `json:"at"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// SyncState is the incremental-sync ledger of one configuration.
// It is owned by a single sync attempt at a time and reported back whole.
type SyncState struct {
	LastSyncedAt                 *time.Time             `json:"last_synced_at,omitempty"`
	LastSuccessfulSyncAt         *time.Time             `json:"last_successful_sync_at,omitempty"`
	LastProcessedApplicationDate *time.Time             `json:"last_processed_application_date,omitempty"`
	SameDateProcessedIDs         []string               `json:"same_date_processed_ids,omitempty"`
	JobSyncInfos                 map[string]JobSyncInfo `json:"job_sync_infos,omitempty"`
	TotalApplicationsProcessed   int64                  `json:"total_applications_processed"`
	ConsecutiveFailureCount      int                    `json:"consecutive_failure_count"`
	RecentErrors                 []SyncError            `json:"recent_errors,omitempty"`
}

// Clone returns a deep copy so an attempt never mutates its input snapshot.
func (s SyncState) Clone() SyncState {
	out := s
	out.LastSyncedAt = cloneTime(s.LastSyncedAt)
	out.LastSuccessfulSyncAt = cloneTime(s.LastSuccessfulSyncAt)
	out.LastProcessedApplicationDate = cloneTime(s.LastProcessedApplicationDate)
	if s.SameDateProcessedIDs != nil {
		out.SameDateProcessedIDs = append([]string(nil), s.SameDateProcessedIDs...)
	}
	if s.JobSyncInfos != nil {
		out.JobSyncInfos = make(map[string]JobSyncInfo, len(s.JobSyncInfos))
		for id, info := range s.JobSyncInfos {
			out.JobSyncInfos[id] = info
		}
	}
	if s.RecentErrors != nil {
		out.RecentErrors = append([]SyncError(nil), s.RecentErrors...)
	}
	return out
}

// Boundary returns the dedup boundary, zero if nothing was processed yet.
func (s SyncState) Boundary() time.Time {
	if s.LastProcessedApplicationDate == nil {
		return time.Time{}
	}
	return *s.LastProcessedApplicationDate
}

// RecordError appends to RecentErrors, evicting the oldest beyond capacity.
func (s *SyncState) RecordError(at time.Time, kind ErrorKind, message string) {
	s.RecentErrors = append(s.RecentErrors, SyncError{At: at, Kind: kind, Message: message})
	if over := len(s.RecentErrors) - MaxRecentErrors; over > 0 {
		s.RecentErrors = append([]SyncError(nil), s.RecentErrors[over:]...)
	}
}

// MarkFailed records a failed attempt.
func (s *SyncState) MarkFailed(at time.Time, kind ErrorKind, message string) {
	s.LastSyncedAt = &at
	s.ConsecutiveFailureCount++
	s.RecordError(at, kind, message)
}

// MarkSucceeded records a successful attempt that emitted processed applications.
func (s *SyncState) MarkSucceeded(at time.Time, processed int) {
	s.LastSyncedAt = &at
	s.LastSuccessfulSyncAt = &at
	s.TotalApplicationsProcessed += int64(processed)
	s.ConsecutiveFailureCount = 0
}

// SyncStats summarises one sync attempt
type SyncStats struct {
	JobsDiscovered      int `json:"jobs_discovered"`
	JobsChanged         int `json:"jobs_changed"`
	JobsFailed          int `json:"jobs_failed"`
	ApplicationsFetched int `json:"applications_fetched"`
	ApplicationsEmitted int `json:"applications_emitted"`
	CVDownloadFailures  int `json:"cv_download_failures"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
