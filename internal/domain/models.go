package domain

import "time"

type SiteID int64

// Status is the last known reachability of a site. The zero value means the
// site has never been checked.
type Status string

const (
	StatusUnknown Status = ""
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

func (s Status) Valid() bool {
	return s == StatusUnknown || s == StatusUp || s == StatusDown
}

// StoredStatus reads a persisted status column. An unrecognized value is
// treated as never checked, so the next cycle overwrites it.
func StoredStatus(raw string) Status {
	if s := Status(raw); s.Valid() {
		return s
	}
	return StatusUnknown
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Site struct {
	ID            SiteID     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Status        Status     `json:"status,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked,omitempty"`
	DownSince     *time.Time `json:"down_since,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CheckRecord is one probe outcome for one site. Records are never updated;
// they disappear only when their site is deleted.
type CheckRecord struct {
	ID        int64     `json:"id"`
	SiteID    SiteID    `json:"site_id"`
	Outcome   Outcome   `json:"outcome"`
	HTTPCode  *int      `json:"http_code"`  // nil on network-level failure
	LatencyMS *int64    `json:"latency_ms"` // nil on network-level failure
	CheckedAt time.Time `json:"checked_at"`
}

// Stats are aggregate site counts by status. Pending sites have not been
// checked yet.
type Stats struct {
	Total   int `json:"total"`
	Up      int `json:"up"`
	Down    int `json:"down"`
	Pending int `json:"pending"`
}
