package sync

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/lobstr"
)

// Resolver turns raw scrape records into insertable leads. Phones are the
// identity key: within a batch the first occurrence of a phone wins and
// later ones become duplicate evidence; phones already present in the
// identity store are dropped silently.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver backed by the given identity store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve deduplicates a batch of raw records against itself and the
// identity store. Records without a phone are skipped. All records of one
// migration pass go through a single Resolve call so that cross-run
// collisions keep the earliest occurrence.
func (r *Resolver) Resolve(ctx context.Context, importID uuid.UUID, records []lobstr.RawRecord) ([]model.LeadRecord, []model.DuplicateLead, error) {
	seen := make(map[string]struct{}, len(records))
	var candidates []model.LeadRecord
	var dups []model.DuplicateLead

	for _, rec := range records {
		phone := model.NormalizePhone(rec.Phone())
		if phone == "" {
			continue
		}
		if _, ok := seen[phone]; ok {
			dups = append(dups, model.DuplicateLead{
				ID:      uuid.New(),
				Phone:   phone,
				Content: recordContent(rec, phone),
			})
			continue
		}
		seen[phone] = struct{}{}
		candidates = append(candidates, model.LeadRecord{
			ID:             uuid.New(),
			Neighbourhood:  rec.Neighbourhood(),
			ParsingDate:    model.ParseScrapeDate(rec.ScrapingTime()),
			RealEstateType: rec.RealEstateType(),
			Phone:          phone,
			Rooms:          rec.Rooms(),
			Size:           rec.Size(),
			Energy:         rec.Energy(),
			ImportID:       importID,
		})
	}

	if len(candidates) == 0 {
		return nil, dups, nil
	}

	phones := make([]string, len(candidates))
	for i, c := range candidates {
		phones[i] = c.Phone
	}
	existing, err := r.store.FindExistingPhones(ctx, phones)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sync: resolve batch")
	}

	clean := candidates[:0]
	for _, c := range candidates {
		if _, ok := existing[c.Phone]; ok {
			continue
		}
		clean = append(clean, c)
	}
	return clean, dups, nil
}

// recordContent renders a raw record in destination column order for
// duplicate evidence rows.
func recordContent(rec lobstr.RawRecord, phone string) []string {
	return []string{
		rec.Neighbourhood(),
		rec.ScrapingTime(),
		rec.RealEstateType(),
		phone,
		rec.Rooms(),
		rec.Size(),
		rec.Energy(),
	}
}
