package sync

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/capitalead/leadsync/internal/metrics"
	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// Packer assigns leads to capacity-bounded CRM lists. Existing lists are
// filled up to the row ceiling first; overflow goes to freshly created
// lists with an incremented sequence index. Every lead handed to Pack is
// placed exactly once, or an error is returned with nothing half-assigned
// beyond what the CRM already accepted.
type Packer struct {
	crm   nocrm.Client
	store store.Store
	log   *zap.Logger
}

// NewPacker creates a packer writing to the given CRM and local mirror.
func NewPacker(crm nocrm.Client, st store.Store) *Packer {
	return &Packer{
		crm:   crm,
		store: st,
		log:   zap.L().With(zap.String("component", "sync.packer")),
	}
}

// Pack distributes leads across the cluster's lists and uploads the rows.
// It returns the same leads with their list assignment set. A list
// creation or row upload failure aborts the cluster.
func (p *Packer) Pack(ctx context.Context, clusterID, clusterName string, leads []model.LeadRecord, lists []model.DestinationList) ([]model.LeadRecord, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	sorted := make([]model.DestinationList, len(lists))
	copy(sorted, lists)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceIndex < sorted[j].SequenceIndex
	})

	placed := make([]model.LeadRecord, 0, len(leads))
	pool := leads
	maxIndex := 0

	for _, list := range sorted {
		if list.SequenceIndex > maxIndex {
			maxIndex = list.SequenceIndex
		}
		if len(pool) == 0 {
			break
		}
		take := list.Remaining()
		if take == 0 {
			continue
		}
		if take > len(pool) {
			take = len(pool)
		}

		assigned, err := p.fill(ctx, list, pool[:take])
		if err != nil {
			return nil, err
		}
		placed = append(placed, assigned...)
		pool = pool[take:]
	}

	for len(pool) > 0 {
		maxIndex++
		list, err := p.createList(ctx, clusterID, clusterName, maxIndex)
		if err != nil {
			return nil, err
		}

		take := model.MaxListRows
		if take > len(pool) {
			take = len(pool)
		}
		assigned, err := p.fill(ctx, *list, pool[:take])
		if err != nil {
			return nil, err
		}
		placed = append(placed, assigned...)
		pool = pool[take:]
	}

	return placed, nil
}

// fill uploads the leads to one list and refreshes the local mirror row.
func (p *Packer) fill(ctx context.Context, list model.DestinationList, leads []model.LeadRecord) ([]model.LeadRecord, error) {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = l.Row()
	}
	if err := p.crm.AppendRows(ctx, list.ID, rows); err != nil {
		return nil, eris.Wrapf(err, "sync: pack into list %q", list.Title)
	}

	list.RowCount += len(leads)
	if err := p.store.UpsertDestinationList(ctx, list); err != nil {
		return nil, err
	}

	assigned := make([]model.LeadRecord, len(leads))
	for i, l := range leads {
		listID := list.ID
		l.ListID = &listID
		assigned[i] = l
	}
	p.log.Debug("filled list",
		zap.String("title", list.Title),
		zap.Int("rows", len(leads)),
		zap.Int("row_count", list.RowCount))
	return assigned, nil
}

// createList makes the next list in the cluster's sequence.
func (p *Packer) createList(ctx context.Context, clusterID, clusterName string, index int) (*model.DestinationList, error) {
	title := nocrm.ListTitle(clusterName, index)
	sheet, err := p.crm.CreateSpreadsheet(ctx, title, nocrm.ListTags(clusterID, clusterName, index))
	if err != nil {
		return nil, eris.Wrapf(err, "sync: create list %q", title)
	}

	list := model.DestinationList{
		ID:            sheet.ID,
		ClusterID:     clusterID,
		ClusterName:   clusterName,
		Title:         title,
		RowCount:      0,
		SequenceIndex: index,
	}
	if err := p.store.UpsertDestinationList(ctx, list); err != nil {
		return nil, err
	}

	metrics.ListsCreated.WithLabelValues(clusterID).Inc()
	p.log.Info("created list", zap.String("title", title), zap.Int64("list_id", sheet.ID))
	return &list, nil
}
