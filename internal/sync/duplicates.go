package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalead/leadsync/internal/db"
	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// phoneColumn is the position of the phone number in a list row.
const phoneColumn = 3

// Scanner sweeps every CRM list and reconciles it with the identity
// store: rows sharing a phone across lists are recorded as duplicate
// evidence, and canonical rows missing from the store are backfilled.
type Scanner struct {
	crm         nocrm.Client
	store       store.Store
	concurrency int
	log         *zap.Logger
}

// ScanReport summarizes one duplicate scan.
type ScanReport struct {
	ListsScanned    int   `json:"lists_scanned"`
	DuplicatesFound int   `json:"duplicates_found"`
	LeadsBackfilled int64 `json:"leads_backfilled"`
}

// NewScanner creates a duplicate scanner. Concurrency bounds the number
// of lists fetched in parallel.
func NewScanner(crm nocrm.Client, st store.Store, concurrency int) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{
		crm:         crm,
		store:       st,
		concurrency: concurrency,
		log:         zap.L().With(zap.String("component", "sync.duplicates")),
	}
}

// Scan fetches all cluster lists and resolves cross-list phone
// collisions. The first occurrence in list order is canonical.
func (s *Scanner) Scan(ctx context.Context) (*ScanReport, error) {
	sheets, err := s.crm.ListSpreadsheets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sync: scan duplicates")
	}

	var clusterSheets []nocrm.Spreadsheet
	for _, sheet := range sheets {
		if _, ok := nocrm.ClusterIDFromTags(sheet.Tags); ok {
			clusterSheets = append(clusterSheets, sheet)
		}
	}

	// Fetch row sets in parallel, keeping list order for the sweep so
	// the canonical pick is deterministic.
	full := make([]*nocrm.Spreadsheet, len(clusterSheets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sheet := range clusterSheets {
		g.Go(func() error {
			sh, err := s.crm.GetSpreadsheet(gctx, sheet.ID)
			if err != nil {
				return eris.Wrapf(err, "sync: fetch list %d", sheet.ID)
			}
			full[i] = sh
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	canonical := make(map[string]model.LeadRecord)
	var order []string
	var dups []model.DuplicateLead

	for _, sheet := range full {
		for _, row := range sheet.Rows {
			if row.IsArchived {
				continue
			}
			phone := rowPhone(row)
			if phone == "" {
				continue
			}
			if _, ok := canonical[phone]; ok {
				dups = append(dups, model.DuplicateLead{
					ID:       uuid.New(),
					Phone:    phone,
					ListID:   sheet.ID,
					CRMRowID: row.ID,
					Content:  contentStrings(row.Content),
				})
				continue
			}
			canonical[phone] = rowLead(sheet.ID, row, phone)
			order = append(order, phone)
		}
	}

	report := &ScanReport{ListsScanned: len(full)}

	dups, err = s.unrecordedDuplicates(ctx, dups)
	if err != nil {
		return nil, err
	}
	if len(dups) > 0 {
		if err := s.store.InsertDuplicates(ctx, dups); err != nil {
			return nil, err
		}
	}
	report.DuplicatesFound = len(dups)

	backfilled, err := s.backfill(ctx, canonical, order)
	if err != nil {
		return nil, err
	}
	report.LeadsBackfilled = backfilled

	s.log.Info("duplicate scan done",
		zap.Int("lists", report.ListsScanned),
		zap.Int("duplicates", report.DuplicatesFound),
		zap.Int64("backfilled", report.LeadsBackfilled))
	return report, nil
}

// unrecordedDuplicates drops evidence already present for the same CRM row.
func (s *Scanner) unrecordedDuplicates(ctx context.Context, dups []model.DuplicateLead) ([]model.DuplicateLead, error) {
	if len(dups) == 0 {
		return nil, nil
	}
	known, err := s.store.ListDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[[2]int64]struct{}, len(known))
	for _, d := range known {
		seen[[2]int64{d.ListID, d.CRMRowID}] = struct{}{}
	}

	fresh := dups[:0]
	for _, d := range dups {
		if _, ok := seen[[2]int64{d.ListID, d.CRMRowID}]; ok {
			continue
		}
		fresh = append(fresh, d)
	}
	return fresh, nil
}

// backfill inserts canonical rows whose phone is missing from the
// identity store, chunked and re-checked before each insert.
func (s *Scanner) backfill(ctx context.Context, canonical map[string]model.LeadRecord, order []string) (int64, error) {
	var inserted int64
	for _, chunk := range db.Chunk(order, persistChunkSize) {
		existing, err := s.store.FindExistingPhones(ctx, chunk)
		if err != nil {
			return inserted, err
		}
		var fresh []model.LeadRecord
		for _, phone := range chunk {
			if _, ok := existing[phone]; ok {
				continue
			}
			fresh = append(fresh, canonical[phone])
		}
		n, err := s.store.InsertLeads(ctx, fresh)
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

// rowPhone extracts the normalized phone from a list row.
func rowPhone(row nocrm.Row) string {
	if len(row.Content) <= phoneColumn {
		return ""
	}
	v, ok := row.Content[phoneColumn].(string)
	if !ok {
		v = fmt.Sprintf("%v", row.Content[phoneColumn])
	}
	return model.NormalizePhone(v)
}

// rowLead rebuilds a lead record from a CRM row in column order.
func rowLead(listID int64, row nocrm.Row, phone string) model.LeadRecord {
	content := contentStrings(row.Content)
	get := func(i int) string {
		if i < len(content) {
			return content[i]
		}
		return ""
	}
	crmRowID := row.ID
	return model.LeadRecord{
		ID:             uuid.New(),
		Neighbourhood:  get(0),
		ParsingDate:    model.ParseScrapeDate(get(1)),
		RealEstateType: get(2),
		Phone:          phone,
		Rooms:          get(4),
		Size:           get(5),
		Energy:         get(6),
		ListID:         &listID,
		CRMLeadID:      &crmRowID,
	}
}

func contentStrings(content []any) []string {
	out := make([]string, len(content))
	for i, v := range content {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		if v != nil {
			out[i] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
