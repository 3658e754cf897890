// Package ingest parses the offline inputs the CLI loads into the store:
// observation and store CSV exports, and batch forecast JSON.
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/model"
)

// observationRow matches the backfill export columns.
type observationRow struct {
	StoreSlug   string `csv:"store_slug"`
	Brand       string `csv:"brand,omitempty"`
	FlavorDate  string `csv:"flavor_date"`
	Title       string `csv:"title"`
	Description string `csv:"description,omitempty"`
	FetchedAt   string `csv:"fetched_at,omitempty"`
}

// ReadObservations decodes an observation CSV. Rows without a store, date,
// or flavor are skipped and counted.
func ReadObservations(r io.Reader) ([]model.Observation, int, error) {
	dec, err := newDecoder(r)
	if err != nil {
		return nil, 0, err
	}

	var (
		out     []model.Observation
		skipped int
	)
	for line := 2; ; line++ {
		var row observationRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, eris.Wrapf(err, "ingest: decode observation line %d", line)
		}
		slug := strings.TrimSpace(row.StoreSlug)
		flavor := strings.TrimSpace(row.Title)
		if slug == "" || flavor == "" || strings.TrimSpace(row.FlavorDate) == "" {
			skipped++
			continue
		}
		date, err := model.ParseDate(strings.TrimSpace(row.FlavorDate))
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: line %d", line)
		}
		captured, err := parseTimestamp(row.FetchedAt)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: line %d", line)
		}
		brand := strings.TrimSpace(row.Brand)
		if brand == "" {
			brand = model.InferBrand(slug)
		}
		out = append(out, model.Observation{
			StoreID:     slug,
			Brand:       brand,
			Date:        date,
			Flavor:      flavor,
			Description: strings.TrimSpace(row.Description),
			CapturedAt:  captured,
		})
	}
	return out, skipped, nil
}

// storeRow keeps coordinates as text so blank cells mean "no location".
type storeRow struct {
	ID    string `csv:"id"`
	Brand string `csv:"brand,omitempty"`
	Name  string `csv:"name,omitempty"`
	City  string `csv:"city,omitempty"`
	State string `csv:"state,omitempty"`
	Lat   string `csv:"lat,omitempty"`
	Lon   string `csv:"lon,omitempty"`
}

// ReadStores decodes a store CSV.
func ReadStores(r io.Reader) ([]model.Store, error) {
	dec, err := newDecoder(r)
	if err != nil {
		return nil, err
	}

	var out []model.Store
	for line := 2; ; line++ {
		var row storeRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "ingest: decode store line %d", line)
		}
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		st := model.Store{
			ID:    id,
			Brand: strings.TrimSpace(row.Brand),
			Name:  strings.TrimSpace(row.Name),
			City:  strings.TrimSpace(row.City),
			State: strings.TrimSpace(row.State),
		}
		if st.Brand == "" {
			st.Brand = model.InferBrand(id)
		}
		if st.Name == "" {
			st.Name = id
		}
		lat, lon := strings.TrimSpace(row.Lat), strings.TrimSpace(row.Lon)
		if lat != "" && lon != "" {
			if st.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
				return nil, eris.Wrapf(err, "ingest: store %s lat", id)
			}
			if st.Lon, err = strconv.ParseFloat(lon, 64); err != nil {
				return nil, eris.Wrapf(err, "ingest: store %s lon", id)
			}
			st.HasLocation = true
		}
		out = append(out, st)
	}
	return out, nil
}

func newDecoder(r io.Reader) (*csvutil.Decoder, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("ingest: csv has no header")
		}
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	return dec, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 or naive ISO timestamps (read as UTC).
// Blank means unknown.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("ingest: unrecognized timestamp %q", s)
}
