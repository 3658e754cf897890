package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is WGS 84, the reference system for every stored coordinate.
const SRID = 4326

const earthRadiusMiles = 3958.8

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseLocation parses a "lat,lon" string.
func ParseLocation(s string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Point{}, eris.Errorf("geo: location %q must be \"lat,lon\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: parse latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: parse longitude %q", parts[1])
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, eris.Errorf("geo: location %q out of range", s)
	}
	return p, nil
}

// Valid reports whether the coordinate is on the globe.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// Miles returns the haversine great-circle distance between a and b.
func Miles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

// EncodeEWKB converts p to little-endian EWKB bytes with SRID 4326.
func EncodeEWKB(p Point) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB parses an EWKB point. Empty input yields ok=false.
func DecodeEWKB(data []byte) (Point, bool, error) {
	if len(data) == 0 {
		return Point{}, false, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, false, eris.Wrap(err, "geo: decode EWKB")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, false, eris.Errorf("geo: expected point, got %T", g)
	}
	if pt.Empty() {
		return Point{}, false, nil
	}
	return Point{Lat: pt.Y(), Lon: pt.X()}, true, nil
}
