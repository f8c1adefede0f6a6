// Package registry loads the immutable station catalog (C2) from a
// stations CSV file whose path the caller supplies (config default:
// stations.csv). The registry is read once at startup; nothing
// in this package mutates after Load returns.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

// Registry is the immutable catalog of known stations, keyed by code.
type Registry struct {
	byCode map[string]domain.Station
	order  []string
}

// Load reads a stations.csv file with header
// code,city,latitude,longitude,iana_zone,venue_tag.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	defer f.Close()
	return load(f)
}

func load(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("registry: read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("registry: empty stations file")
	}

	reg := &Registry{byCode: make(map[string]domain.Station)}

	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "code" {
			continue // header
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("registry: row %d has %d fields, want 6", i, len(row))
		}
		lat, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("registry: row %d latitude: %w", i, err)
		}
		lon, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("registry: row %d longitude: %w", i, err)
		}
		st := domain.Station{
			Code:      row[0],
			City:      row[1],
			Latitude:  lat,
			Longitude: lon,
			IANAZone:  row[4],
			VenueTag:  row[5],
		}
		if _, exists := reg.byCode[st.Code]; exists {
			return nil, fmt.Errorf("registry: duplicate station code %q", st.Code)
		}
		reg.byCode[st.Code] = st
		reg.order = append(reg.order, st.Code)
	}

	if len(reg.byCode) == 0 {
		return nil, fmt.Errorf("registry: no stations loaded")
	}

	return reg, nil
}

// Get returns the station for code, or false if unknown.
func (r *Registry) Get(code string) (domain.Station, bool) {
	s, ok := r.byCode[code]
	return s, ok
}

// All returns every registered station in file order.
func (r *Registry) All() []domain.Station {
	out := make([]domain.Station, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.byCode[code])
	}
	return out
}

// Subset returns the stations matching the given codes, in the order the
// codes were given. Unknown codes are skipped.
func (r *Registry) Subset(codes []string) []domain.Station {
	out := make([]domain.Station, 0, len(codes))
	for _, code := range codes {
		if s, ok := r.byCode[code]; ok {
			out = append(out, s)
		}
	}
	return out
}
