// Package dstack is the grid-evaluation engine: it fits every SED
// template to a star's photometry in closed form, accumulates the
// prior-weighted relative likelihoods into a (reddening, distance
// modulus) raster, smooths that raster with the fit covariance, and
// manages the per-pixel stack of such rasters.
package dstack

import(
	"fmt"
)

// Axis indices for the 2-D parameter grid. Axis 0 is reddening E,
// axis 1 is distance modulus mu, everywhere in this package.
const (
	AxisE  = 0
	AxisMu = 1
)

// A Rect fixes the geometry of the parameter grid: per-axis bounds
// and bin counts, from which the bin size follows. All surfaces in
// one stack share a single Rect.
type Rect struct {
	Min, Max [2]float64
	NBins    [2]int
	Dx       [2]float64
}

func NewRect(min, max [2]float64, nBins [2]int) Rect {
	r := Rect{Min: min, Max: max, NBins: nBins}
	for i:=0; i<2; i++ {
		r.Dx[i] = (max[i] - min[i]) / float64(nBins[i])
	}
	return r
}

func (r Rect)String() string {
	return fmt.Sprintf("rect[E:%g..%g/%d, mu:%g..%g/%d]",
		r.Min[0], r.Max[0], r.NBins[0], r.Min[1], r.Max[1], r.NBins[1])
}

func (r Rect)Contains(e, mu float64) bool {
	return e >= r.Min[0] && e < r.Max[0] && mu >= r.Min[1] && mu < r.Max[1]
}

// BinCenter returns the (E, mu) at the center of bin (i, j).
func (r Rect)BinCenter(i, j int) (float64, float64) {
	return r.Min[0] + (float64(i)+0.5)*r.Dx[0], r.Min[1] + (float64(j)+0.5)*r.Dx[1]
}

// Interpolant locates (e, mu) for bilinear deposit: the low bin index
// along each axis plus the fractional offset toward the next bin.
// The four corner weights (1-a0)(1-a1), a0(1-a1), (1-a0)a1, a0a1
// always sum to exactly 1. ok=false when the point is out of bounds
// (including the final half-bin at the top of each axis, so that
// i0+1/i1+1 are always addressable).
func (r Rect)Interpolant(e, mu float64) (i0, i1 int, a0, a1 float64, ok bool) {
	x0 := (e - r.Min[0]) / r.Dx[0] - 0.5
	x1 := (mu - r.Min[1]) / r.Dx[1] - 0.5

	if x0 < 0.0 || x1 < 0.0 || x0 >= float64(r.NBins[0]-1) || x1 >= float64(r.NBins[1]-1) {
		return 0, 0, 0, 0, false
	}

	i0, i1 = int(x0), int(x1)
	a0, a1 = x0 - float64(i0), x1 - float64(i1)
	return i0, i1, a0, a1, true
}
