package domain

import (
	"sort"
	"time"
)

// IsNew reports whether an application has not been processed by a prior
// attempt. Anything strictly older than the boundary is old; ties at the
// boundary are resolved by the same-date id set.
func IsNew(appID string, submittedAt time.Time, state SyncState) bool {
	boundary := state.Boundary()
	if boundary.IsZero() {
		return true
	}
	if submittedAt.Before(boundary) {
		return false
	}
	if submittedAt.Equal(boundary) {
		for _, id := range state.SameDateProcessedIDs {
			if id == appID {
				return false
			}
		}
	}
	return true
}

// IsBeyondBoundary reports whether pagination over a descending feed can stop.
func IsBeyondBoundary(submittedAt time.Time, state SyncState) bool {
	boundary := state.Boundary()
	return !boundary.IsZero() && submittedAt.Before(boundary)
}

// Advance moves the dedup boundary forward. A strictly newer maximum replaces
// the same-date set; an equal maximum extends it; an older one is ignored.
func Advance(state SyncState, newMaxDate time.Time, idsAtMaxDate []string) SyncState {
	out := state.Clone()
	if newMaxDate.IsZero() {
		return out
	}
	boundary := out.Boundary()
	switch {
	case boundary.IsZero() || newMaxDate.After(boundary):
		d := newMaxDate
		out.LastProcessedApplicationDate = &d
		out.SameDateProcessedIDs = uniqueIDs(nil, idsAtMaxDate)
	case newMaxDate.Equal(boundary):
		out.SameDateProcessedIDs = uniqueIDs(out.SameDateProcessedIDs, idsAtMaxDate)
	}
	return out
}

// TouchJob records the latest application count for a job.
func TouchJob(state SyncState, jobID string, newCount int, now time.Time) SyncState {
	return TouchJobs(state, map[string]int{jobID: newCount}, now)
}

// TouchJobs records the latest application counts for several jobs at once.
func TouchJobs(state SyncState, counts map[string]int, now time.Time) SyncState {
	out := state.Clone()
	if out.JobSyncInfos == nil {
		out.JobSyncInfos = make(map[string]JobSyncInfo, len(counts))
	}
	for jobID, count := range counts {
		out.JobSyncInfos[jobID] = JobSyncInfo{ApplicationCount: count, LastSeenAt: now}
	}
	return out
}

// JobChanged reports whether a job must have its applications fetched:
// it is unseen, or its count grew since the last attempt.
func JobChanged(state SyncState, jobID string, reportedCount int) bool {
	info, ok := state.JobSyncInfos[jobID]
	if !ok {
		return true
	}
	return reportedCount > info.ApplicationCount
}

// PruneStale drops jobs not seen within staleDays, then evicts the
// least recently seen jobs until at most maxTracked remain.
func PruneStale(state SyncState, now time.Time, staleDays, maxTracked int) SyncState {
	out := state.Clone()
	if len(out.JobSyncInfos) == 0 {
		return out
	}

	if staleDays > 0 {
		cutoff := now.Add(-time.Duration(staleDays) * 24 * time.Hour)
		for id, info := range out.JobSyncInfos {
			if info.LastSeenAt.Before(cutoff) {
				delete(out.JobSyncInfos, id)
			}
		}
	}

	if maxTracked <= 0 || len(out.JobSyncInfos) <= maxTracked {
		return out
	}

	ids := make([]string, 0, len(out.JobSyncInfos))
	for id := range out.JobSyncInfos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := out.JobSyncInfos[ids[i]], out.JobSyncInfos[ids[j]]
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.Before(b.LastSeenAt)
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids[:len(ids)-maxTracked] {
		delete(out.JobSyncInfos, id)
	}
	return out
}

func uniqueIDs(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
