package crawler

import "time"

// Meta keys written to the crawl_meta table
const (
	MetaSessionID      = "session_id"
	MetaSessionStarted = "session_started_at"
	MetaLastSummary    = "last_session_summary"
)

// Stats is a snapshot of one crawl session
type Stats struct {
	SessionID     string        `json:"session_id"`
	Universe      int64         `json:"universe"`       // Ids known to the source
	Processed     int64         `json:"processed"`      // Ids with a terminal status
	Remaining     int64         `json:"remaining"`      // Ids scheduled in this session
	Visited       int64         `json:"visited"`        // Ids taken from the schedule so far
	NewlyDone     int64         `json:"newly_done"`     // Terminal statuses written this session
	Succeeded     int64         `json:"succeeded"`      // Apps stored
	Unavailable   int64         `json:"unavailable"`    // Detail fetch returned no data
	Skipped       int64         `json:"skipped"`        // Unsupported kinds
	Failed        int64         `json:"failed"`         // Rolled back writes
	ResolvedLinks int64         `json:"resolved_links"` // Deferred links materialized at shutdown
	StartTime     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration"`
}
