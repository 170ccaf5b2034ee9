package photom

import(
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// A Pixel is one cell of the sky pixelization, plus the stars that
// fall inside it. One Pixel is the unit of work for grid evaluation,
// and the key for the persisted output dataset.
type Pixel struct {
	Name    string     // cell token, used as the dataset key
	CellID  uint64
	Level   int

	L, B    float64    // cell center, galactic degrees
	EBV     float64    // reference reddening estimate (median over stars)

	Stars   []Record
}

func (p Pixel)String() string {
	return fmt.Sprintf("pixel[%s lvl%d (%.3f,%.3f) %d stars]", p.Name, p.Level, p.L, p.B, len(p.Stars))
}

func cellOf(l, b float64, level int) s2.CellID {
	ll := s2.LatLng{Lat: s1.Angle(b * math.Pi / 180.0), Lng: s1.Angle(l * math.Pi / 180.0)}
	return s2.CellIDFromLatLng(ll).Parent(level)
}

// GroupByCell buckets a loose star list into sky pixels: s2 cells at
// the given level, with the galactic (l, b) of each star treated as a
// lat/lng on the unit sphere. Pixels come back sorted by cell id so
// runs are ordered deterministically.
func GroupByCell(stars []Record, level int) []Pixel {
	byCell := map[s2.CellID][]Record{}
	for _, st := range stars {
		id := cellOf(st.L, st.B, level)
		byCell[id] = append(byCell[id], st)
	}

	ids := make([]s2.CellID, 0, len(byCell))
	for id := range byCell {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pixels := make([]Pixel, 0, len(ids))
	for _, id := range ids {
		members := byCell[id]
		center := id.LatLng()

		ebvs := make([]float64, len(members))
		for i, st := range members {
			ebvs[i] = st.EBV
		}
		sort.Float64s(ebvs)

		pixels = append(pixels, Pixel{
			Name:   id.ToToken(),
			CellID: uint64(id),
			Level:  level,
			L:      center.Lng.Degrees(),
			B:      center.Lat.Degrees(),
			EBV:    ebvs[len(ebvs)/2],
			Stars:  members,
		})
	}

	return pixels
}
