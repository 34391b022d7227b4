package entities

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// OrphanStats is the body of GET /orphans/stats/.
type OrphanStats struct {
	Total               int     `json:"total_orphans"`
	Active              int     `json:"active_orphans"`
	Pending             int     `json:"pending_orphans"`
	Inactive            int     `json:"inactive_orphans"`
	MonthlyBudget       Decimal `json:"total_monthly_budget"`
	AvgMonthlyAllowance Decimal `json:"avg_monthly_allowance"`
}

// BoreholeStats is the body of GET /boreholes/stats/.
type BoreholeStats struct {
	Total            int     `json:"total_boreholes"`
	Active           int     `json:"active_boreholes"`
	Maintenance      int     `json:"maintenance_boreholes"`
	Beneficiaries    int     `json:"total_beneficiaries"`
	AvgBeneficiaries Decimal `json:"avg_beneficiaries_per_borehole"`
}

// ReportStats is the body of GET /reports/stats/.
type ReportStats struct {
	Total     int `json:"total_reports"`
	Draft     int `json:"draft_reports"`
	Published int `json:"published_reports"`
	ThisMonth int `json:"reports_this_month"`
}

func (o *Orphans) Stats(ctx context.Context) (OrphanStats, error) {
	var out OrphanStats
	if err := o.client.DoJSON(ctx, http.MethodGet, o.endpoint+"stats/", nil, nil, &out); err != nil {
		return out, fmt.Errorf("[entities Orphans.Stats] %w", err)
	}
	return out, nil
}

func (b *Boreholes) Stats(ctx context.Context) (BoreholeStats, error) {
	var out BoreholeStats
	if err := b.client.DoJSON(ctx, http.MethodGet, b.endpoint+"stats/", nil, nil, &out); err != nil {
		return out, fmt.Errorf("[entities Boreholes.Stats] %w", err)
	}
	return out, nil
}

func (r *Reports) Stats(ctx context.Context) (ReportStats, error) {
	var out ReportStats
	if err := r.client.DoJSON(ctx, http.MethodGet, r.endpoint+"stats/", nil, nil, &out); err != nil {
		return out, fmt.Errorf("[entities Reports.Stats] %w", err)
	}
	return out, nil
}

// Summary feeds the dashboard cards.
type Summary struct {
	Orphans   OrphanStats   `json:"orphans"`
	Boreholes BoreholeStats `json:"boreholes"`
	Reports   ReportStats   `json:"reports"`
	// Users is only counted when requested (admin dashboards).
	Users       int `json:"users,omitempty"`
	ActiveUsers int `json:"active_users,omitempty"`
}

// Summarize fetches the three collection stats, and the user count when
// withUsers is set, concurrently. The first failure cancels the rest.
func (d *Directory) Summarize(ctx context.Context, withUsers bool) (Summary, error) {
	var s Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.Orphans, err = d.Orphans.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		s.Boreholes, err = d.Boreholes.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		s.Reports, err = d.Reports.Stats(gctx)
		return err
	})
	if withUsers {
		g.Go(func() error {
			users, err := d.Users.List(gctx, nil)
			if err != nil {
				return err
			}
			s.Users = len(users)
			for _, u := range users {
				if u.IsActive {
					s.ActiveUsers++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("[entities Summarize] %w", err)
	}
	return s, nil
}
