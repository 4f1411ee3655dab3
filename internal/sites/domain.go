// Package sites manages construction sites, their budgets and progress.
package sites

import "time"

// Status enumerates site lifecycle states.
type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusOnHold, StatusCompleted:
		return true
	}
	return false
}

// Site represents a construction site. SpentBudget, PendingBills and
// OverBudget are derived counters maintained by bill approval and are never
// written directly through site updates.
type Site struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Location     string     `json:"location"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	TotalBudget  float64    `json:"totalBudget"`
	SpentBudget  float64    `json:"spentBudget"`
	PendingBills int        `json:"pendingBills"`
	OverBudget   bool       `json:"overBudget"`
	SupervisorID *int64     `json:"supervisorId,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewSite carries the writable fields for creating a site.
type NewSite struct {
	Name        string
	Location    string
	TotalBudget float64
	StartDate   *time.Time
	EndDate     *time.Time
}

// UpdateSite carries the writable fields for editing a site. Budget counters
// are excluded on purpose.
type UpdateSite struct {
	Name        string
	Location    string
	Status      Status
	TotalBudget float64
	StartDate   *time.Time
	EndDate     *time.Time
}
