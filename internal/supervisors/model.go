// Package supervisors maintains the supervisor catalog.
package supervisors

import "time"

// Supervisor represents a site supervisor. UserID links the catalog entry to
// the account that logs in; AssignedSiteID mirrors the site-side assignment.
type Supervisor struct {
	ID                int64     `json:"id"`
	UserID            *int64    `json:"userId,omitempty"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Status            string    `json:"status"`
	AssignedSiteID    *int64    `json:"assignedSiteId,omitempty"`
	CompletedProjects int       `json:"completedProjects"`
	Rating            float64   `json:"rating"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
