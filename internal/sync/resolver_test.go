package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/pkg/lobstr"
)

func TestResolve_PhoneCollisions(t *testing.T) {
	st := newFakeStore()
	// 0699999999 is already known to the identity store.
	_, err := st.InsertLeads(context.Background(), []model.LeadRecord{
		{ID: uuid.New(), Phone: "0699999999"},
	})
	require.NoError(t, err)

	batch := []lobstr.RawRecord{
		{"phone": "06.11.22.33.44", "city": "Lyon", "scraping_time": "25/03/2024 09:00:00"},
		{"phone": "0611223344", "city": "Paris"},
		{"phone": "0699999999", "city": "Nice"},
	}

	importID := uuid.New()
	clean, dups, err := NewResolver(st).Resolve(context.Background(), importID, batch)

	require.NoError(t, err)
	// Dotted and plain forms collide after normalization; the first wins.
	require.Len(t, clean, 1)
	assert.Equal(t, "0611223344", clean[0].Phone)
	assert.Equal(t, "Lyon", clean[0].Neighbourhood)
	assert.Equal(t, importID, clean[0].ImportID)
	// The in-batch collision is evidence; the store collision is silent.
	require.Len(t, dups, 1)
	assert.Equal(t, "0611223344", dups[0].Phone)
}

func TestResolve_SkipsEmptyPhones(t *testing.T) {
	st := newFakeStore()

	clean, dups, err := NewResolver(st).Resolve(context.Background(), uuid.New(), []lobstr.RawRecord{
		{"city": "Lyon"},
		{"phone": "  "},
		{"phone": "0611223344"},
	})

	require.NoError(t, err)
	assert.Empty(t, dups)
	require.Len(t, clean, 1)
	assert.Equal(t, "0611223344", clean[0].Phone)
}

func TestResolve_ParsesScrapeDate(t *testing.T) {
	st := newFakeStore()

	clean, _, err := NewResolver(st).Resolve(context.Background(), uuid.New(), []lobstr.RawRecord{
		{"phone": "0611223344", "scraping_time": "25/03/2024 09:13:52"},
	})

	require.NoError(t, err)
	require.Len(t, clean, 1)
	assert.Equal(t, "25/03/2024", clean[0].ParsingDate.Format("02/01/2006"))
}

func TestResolve_EmptyBatch(t *testing.T) {
	st := newFakeStore()

	clean, dups, err := NewResolver(st).Resolve(context.Background(), uuid.New(), nil)

	require.NoError(t, err)
	assert.Empty(t, clean)
	assert.Empty(t, dups)
}
