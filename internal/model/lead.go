// Package model defines the domain entities of the lead synchronization engine.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxListRows is the row capacity of a CRM prospecting list. The packer never
// assigns more rows to a list than its remaining capacity under this ceiling.
const MaxListRows = 4999

// ClusterIDLength is the fixed length of an upstream cluster identifier.
const ClusterIDLength = 32

// parsingDateLayout is the day/month/year format scrape payloads carry.
const parsingDateLayout = "02/01/2006"

// LeadRecord is a prospect keyed by its normalized phone number. Records are
// created when a run is absorbed and never deleted; downstream reconciliation
// may mark them disabled.
type LeadRecord struct {
	ID             uuid.UUID  `json:"id"`
	Neighbourhood  string     `json:"neighbourhood"`
	ParsingDate    time.Time  `json:"parsing_date"`
	RealEstateType string     `json:"real_estate_type"`
	Phone          string     `json:"phone"`
	Rooms          string     `json:"rooms"`
	Size           string     `json:"size"`
	Energy         string     `json:"energy"`
	ListID         *int64     `json:"list_id,omitempty"`
	ImportID       uuid.UUID  `json:"import_id"`
	CRMLeadID      *int64     `json:"crm_lead_id,omitempty"`
	Disabled       bool       `json:"disabled"`
}

// Row returns the lead as a CRM spreadsheet row in column order:
// Neighborhood, Parsing Date, Type, Téléphone, Rooms, Size, Energy.
func (l LeadRecord) Row() []any {
	return []any{
		l.Neighbourhood,
		l.ParsingDate.Format(parsingDateLayout),
		l.RealEstateType,
		l.Phone,
		l.Rooms,
		l.Size,
		l.Energy,
	}
}

// ProcessedRun records that an upstream run has been fully absorbed. A run id
// is recorded at most once; its presence makes re-absorption a no-op.
type ProcessedRun struct {
	ID          uuid.UUID `json:"id"`
	RunID       string    `json:"run_id"`
	ClusterID   string    `json:"cluster_id"`
	LeadCount   int64     `json:"lead_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DuplicateLead is evidence of a suppressed duplicate: a candidate whose phone
// collided with an earlier row. Never hard-deleted; Deleted records that the
// CRM-side counterpart has since been cleaned up.
type DuplicateLead struct {
	ID       uuid.UUID `json:"id"`
	Phone    string    `json:"phone"`
	ListID   int64     `json:"list_id"`
	CRMRowID int64     `json:"crm_row_id"`
	Content  []string  `json:"content"`
	Deleted  bool      `json:"deleted"`
}

// DestinationList is a capacity-bounded CRM prospecting list.
type DestinationList struct {
	ID            int64  `json:"id"`
	ClusterID     string `json:"cluster_id"`
	ClusterName   string `json:"cluster_name"`
	Title         string `json:"title"`
	RowCount      int    `json:"row_count"`
	SequenceIndex int    `json:"sequence_index"`
}

// Remaining returns the number of rows the list can still accept.
func (d DestinationList) Remaining() int {
	if d.RowCount >= MaxListRows {
		return 0
	}
	return MaxListRows - d.RowCount
}

// NormalizePhone strips dot separators and surrounding whitespace. Phones are
// the global identity key, so every comparison goes through this.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(strings.ReplaceAll(phone, ".", ""))
}

// ParseScrapeDate parses the leading day/month/year portion of a scrape
// timestamp as UTC. Unparseable values fall back to the current UTC time —
// a recorded lossy default of the source system, kept as-is.
func ParseScrapeDate(raw string) time.Time {
	s := raw
	if len(s) > len(parsingDateLayout) {
		s = s[:len(parsingDateLayout)]
	}
	t, err := time.ParseInLocation(parsingDateLayout, s, time.UTC)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
