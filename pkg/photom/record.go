// Package photom holds the per-star photometric inputs to the grid
// evaluation: observed magnitudes, their uncertainties, parallax, and
// the grouping of stars into sky pixels.
package photom

import(
	"math"
)

// NBands is the number of photometric passbands carried per star
// (grizy).
const NBands = 5

// MissingErrThreshold: a band whose uncertainty exceeds this sentinel
// is treated as unobserved. Loaders mark missing bands by storing a
// huge uncertainty rather than by shrinking the arrays, so every band
// index is always addressable.
const MissingErrThreshold = 9.0e9

// A Record is one star's observed photometry. Built once by a loader
// (or synthesized), then read-only for the rest of the pipeline.
type Record struct {
	ObjID     uint64
	L, B      float64   // galactic coords, degrees

	Pi, PiErr float64   // parallax and uncertainty, arcsec; PiErr=+Inf when absent

	Mag       [NBands]float64
	Err       [NBands]float64
	MagLimit  [NBands]float64
	NDet      [NBands]uint32

	EBV       float64   // scalar reddening prior estimate for this sightline
	LnLNorm   float64   // Gaussian likelihood normalization over valid bands
}

// BandValid reports whether band i carries a real measurement.
func (r *Record)BandValid(i int) bool {
	e := r.Err[i]
	return !math.IsNaN(e) && !math.IsInf(e, 0) && e < MissingErrThreshold
}

// NumPassbands counts the bands with usable measurements.
func (r *Record)NumPassbands() int {
	n := 0
	for i:=0; i<NBands; i++ {
		if r.BandValid(i) { n++ }
	}
	return n
}

// Finalize applies the survey error floor (added in quadrature) and
// computes LnLNorm. Loaders call this once, after filling Mag/Err.
func (r *Record)Finalize(errFloor float64) {
	r.LnLNorm = 0.0
	for i:=0; i<NBands; i++ {
		if !r.BandValid(i) { continue }
		r.Err[i] = math.Sqrt(r.Err[i]*r.Err[i] + errFloor*errFloor)
		r.LnLNorm += 0.9189385332 + math.Log(r.Err[i]) // 0.5*ln(2*pi) + ln(sigma)
	}
	if r.PiErr == 0.0 {
		r.PiErr = math.Inf(1)
	}
}
