// Package ledger is the read side of the procurement core. It aggregates
// budgets, bills and requests into reporting views and never mutates
// lifecycle state.
package ledger

import "time"

// SiteBudgetSummary is the budget position of one site.
type SiteBudgetSummary struct {
	SiteID       int64   `json:"siteId"`
	SiteName     string  `json:"siteName"`
	Status       string  `json:"status"`
	TotalBudget  float64 `json:"totalBudget"`
	SpentBudget  float64 `json:"spentBudget"`
	PendingBills int     `json:"pendingBills"`
	OverBudget   bool    `json:"overBudget"`
	// Remaining is total minus spent and goes negative on overrun.
	Remaining float64 `json:"remaining"`
	// Utilization is spent over total as a percentage, clamped to
	// [0, 100]. A site without a budget reads as 0, not a division blowup.
	Utilization float64 `json:"utilization"`
}

// SiteBillTotals aggregates bill outcomes for one site.
type SiteBillTotals struct {
	SiteID         int64   `json:"siteId"`
	ApprovedAmount float64 `json:"approvedAmount"`
	ApprovedCount  int     `json:"approvedCount"`
	PendingCount   int     `json:"pendingCount"`
	RejectedCount  int     `json:"rejectedCount"`
}

// VendorPerformance summarises a vendor's billing track record.
type VendorPerformance struct {
	VendorID       int64   `json:"vendorId"`
	VendorName     string  `json:"vendorName"`
	Category       string  `json:"category"`
	BillCount      int     `json:"billCount"`
	ApprovedAmount float64 `json:"approvedAmount"`
	PendingAmount  float64 `json:"pendingAmount"`
	RejectedCount  int     `json:"rejectedCount"`
	// RejectionRate is rejected over total bills as a percentage.
	RejectionRate float64 `json:"rejectionRate"`
}

// SupervisorStats summarises a supervisor's request activity.
type SupervisorStats struct {
	SupervisorID   int64  `json:"supervisorId"`
	Name           string `json:"name"`
	AssignedSiteID *int64 `json:"assignedSiteId,omitempty"`
	RequestCount   int    `json:"requestCount"`
	ApprovedCount  int    `json:"approvedCount"`
	PendingCount   int    `json:"pendingCount"`
	RejectedCount  int    `json:"rejectedCount"`
}

// Dashboard is the combined reporting view.
type Dashboard struct {
	Sites       []SiteBudgetSummary `json:"sites"`
	Vendors     []VendorPerformance `json:"vendors"`
	Supervisors []SupervisorStats   `json:"supervisors"`
	GeneratedAt time.Time           `json:"generatedAt"`
}
