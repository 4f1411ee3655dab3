// Package bills implements the bill lifecycle. Approving a bill is the only
// way money moves onto a site's budget, and that application is atomic with
// the status transition.
package bills

import (
	"math"
	"time"
)

// Status enumerates bill lifecycle states. Approved and rejected are
// terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is a reviewer's verdict on a pending bill.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// BillItem is one billed material line.
type BillItem struct {
	ID           int64   `json:"id"`
	MaterialName string  `json:"materialName"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
}

// Bill is the bill header with its items. TotalAmount is computed at
// creation and never re-derived afterwards.
type Bill struct {
	ID              int64      `json:"id"`
	RequestID       int64      `json:"requestId"`
	VendorID        int64      `json:"vendorId"`
	SiteID          int64      `json:"siteId"`
	GSTPercent      float64    `json:"gstPercent"`
	TotalAmount     float64    `json:"totalAmount"`
	Status          Status     `json:"status"`
	CreatedBy       int64      `json:"createdBy"`
	ApprovedBy      *int64     `json:"approvedBy,omitempty"`
	RejectedBy      *int64     `json:"rejectedBy,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	Items           []BillItem `json:"items"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Total computes the bill amount: the item subtotal with GST applied,
// rounded to two decimal places in one final step.
func Total(items []BillItem, gstPercent float64) float64 {
	var subtotal float64
	for _, it := range items {
		subtotal += it.Quantity * it.UnitPrice
	}
	return math.Round(subtotal*(1+gstPercent/100)*100) / 100
}
