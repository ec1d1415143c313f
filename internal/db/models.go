package db

import (
	"time"

	"github.com/google/uuid"
)

// Lead represents a sales lead in the database. Optional text fields
// are pointers; nil means "absent" (blank strings are normalized to
// nil before persistence).
type Lead struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Phone            int64      `json:"phone"`
	Purpose          *string    `json:"purpose,omitempty"`
	Remarks          *string    `json:"remarks,omitempty"`
	Budget           *string    `json:"budget,omitempty"`
	Source           *string    `json:"source,omitempty"`
	Requirement      *string    `json:"requirement,omitempty"`
	ReferenceName    *string    `json:"reference_name,omitempty"`
	ReferenceContact *string    `json:"reference_contact,omitempty"`
	Potential        []string   `json:"potential,omitempty"`
	Favourite        bool       `json:"favourite"`
	Status           *string    `json:"status,omitempty"`
	AutoStatus       *string    `json:"auto_status,omitempty"`
	ScheduledDate    time.Time  `json:"scheduled_date"`
	ScheduledTime    *string    `json:"scheduled_time,omitempty"` // HH:MM, 24-hour
	DateTime         *time.Time `json:"date_time,omitempty"`      // derived, never set directly
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Workflow status constants (human-set).
const (
	StatusOpen               = "open"
	StatusInProgress         = "inprogress"
	StatusSiteVisitScheduled = "sitevisitscheduled"
	StatusSiteVisited        = "sitevisited"
	StatusClosed             = "closed"
	StatusRejected           = "rejected"
)

// Auto status constants (system-derived urgency tag). Absence (nil)
// means the tag is suppressed because a workflow status is set.
const (
	AutoStatusNew    = "new"
	AutoStatusMissed = "missed"
)

// Lead source constants.
const (
	SourceWalkin       = "walkin"
	SourcePortals      = "portals"
	SourceMetaAds      = "meta_ads"
	SourceGoogleAds    = "google_ads"
	SourceCP           = "cp"
	SourceNewspaperAds = "newspaper_ads"
	SourceHoardings    = "hoardings"
	SourceReference    = "reference"
)

// Potential constants.
const (
	PotentialHot  = "Hot"
	PotentialWarm = "Warm"
	PotentialCold = "Cold"
)

// Notification kind constants.
const (
	KindScheduled = "scheduled"
	KindMissed    = "missed"
)

// Notification represents a dispatched lead reminder. At most one
// notification with kind "scheduled" exists per (lead_id, scheduled_at)
// pair; the unique index on (lead_id, scheduled_at, kind) enforces it.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"lead_id"`
	LeadName    string    `json:"lead_name"` // snapshot at dispatch time, not re-synced
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Kind        string    `json:"kind"`
	IsRead      bool      `json:"is_read"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
}
