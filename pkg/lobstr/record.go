package lobstr

import "fmt"

// RawRecord is a loosely-typed scrape payload. Field names vary by scrape
// source (e.g. "neighborhood" vs "city"), so accessors probe the known
// alternatives in priority order.
type RawRecord map[string]any

func (r RawRecord) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		default:
			return fmt.Sprintf("%v", s)
		}
	}
	return ""
}

// Phone returns the raw (unnormalized) phone number.
func (r RawRecord) Phone() string {
	return r.str("phone")
}

// ScrapingTime returns the raw scrape timestamp string.
func (r RawRecord) ScrapingTime() string {
	return r.str("scraping_time")
}

// Neighbourhood returns the neighborhood, falling back to the city.
func (r RawRecord) Neighbourhood() string {
	return r.str("neighborhood", "city")
}

// RealEstateType returns the property type.
func (r RawRecord) RealEstateType() string {
	return r.str("breadcrumb", "real_estate_type")
}

// Rooms returns the room count.
func (r RawRecord) Rooms() string {
	return r.str("rooms", "room_count")
}

// Size returns the surface area.
func (r RawRecord) Size() string {
	return r.str("size", "area")
}

// Energy returns the energy rating.
func (r RawRecord) Energy() string {
	return r.str("energy", "DPE_string")
}
