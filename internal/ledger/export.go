package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/buildledger/buildledger/internal/shared"
)

// ExportSiteBudgetsCSV streams the site budget view as CSV. Amounts carry
// both a machine column and a display column with Indian grouping.
func (s *Service) ExportSiteBudgetsCSV(ctx context.Context, actor shared.Actor, w io.Writer) error {
	sites, err := s.SiteBudgets(ctx, actor)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"site_id", "site_name", "status", "total_budget", "spent_budget",
		"spent_display", "remaining", "pending_bills", "over_budget", "utilization_pct"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ledger: write csv header: %w", err)
	}
	for _, site := range sites {
		record := []string{
			strconv.FormatInt(site.SiteID, 10),
			site.SiteName,
			site.Status,
			strconv.FormatFloat(site.TotalBudget, 'f', 2, 64),
			strconv.FormatFloat(site.SpentBudget, 'f', 2, 64),
			FormatINR(site.SpentBudget),
			strconv.FormatFloat(site.Remaining, 'f', 2, 64),
			strconv.Itoa(site.PendingBills),
			strconv.FormatBool(site.OverBudget),
			strconv.FormatFloat(site.Utilization, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("ledger: write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
