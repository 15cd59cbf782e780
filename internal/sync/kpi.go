package sync

import (
	"context"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
)

// Report combines engine-wide totals with the list mirror and the latest
// import audit row.
type Report struct {
	store.KPIReport
	Lists      []model.DestinationList `json:"lists"`
	LastImport *model.Import           `json:"last_import,omitempty"`
}

// BuildReport assembles the KPI report from the store.
func BuildReport(ctx context.Context, st store.Store) (*Report, error) {
	kpi, err := st.KPIReport(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := st.ListDestinationLists(ctx)
	if err != nil {
		return nil, err
	}
	last, err := st.LatestImport(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{KPIReport: *kpi, Lists: lists, LastImport: last}, nil
}
