// Package requests implements the material request lifecycle: a supervisor
// asks for materials, procurement approves or rejects, and approved requests
// become billable.
package requests

import (
	"sort"
	"time"
)

// Urgency ranks how quickly a request needs attention.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
)

var urgencyRank = map[Urgency]int{
	UrgencyCritical: 0,
	UrgencyUrgent:   1,
	UrgencyNormal:   2,
}

// Valid reports whether the urgency is a known value.
func (u Urgency) Valid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Status enumerates request lifecycle states. Approved and rejected are
// terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is a reviewer's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// MaterialLine is one requested material.
type MaterialLine struct {
	ID           int64   `json:"id"`
	MaterialName string  `json:"materialName"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// MaterialRequest is the request header with its lines.
type MaterialRequest struct {
	ID              int64          `json:"id"`
	SiteID          int64          `json:"siteId"`
	RequestedBy     int64          `json:"requestedBy"`
	Urgency         Urgency        `json:"urgency"`
	Status          Status         `json:"status"`
	Notes           string         `json:"notes"`
	ReviewedBy      *int64         `json:"reviewedBy,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Materials       []MaterialLine `json:"materials"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// SortByPriority orders requests critical first, then urgent, then normal,
// with creation time breaking ties. The sort is stable so equally ranked
// requests keep their stored order.
func SortByPriority(list []MaterialRequest) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := urgencyRank[list[i].Urgency], urgencyRank[list[j].Urgency]
		if ri != rj {
			return ri < rj
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
