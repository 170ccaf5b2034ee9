package dstack

import(
	"math"

	"github.com/abworrall/dustgrid/pkg/dmath"
)

// CovKernel builds the discretized anisotropic Gaussian used to smooth
// a finished surface, from the 2x2 precision terms of the star's ML
// fit. The kernel approximates marginalizing over the continuous
// parameter space each discrete template point stands in for.
//
// The arguments are in raster axis order: c00 multiplies dE^2, c11
// multiplies dmu^2 (callers hand the solver matrix in swapped order,
// since the solver works in (mu, E)).
//
// addDiagonal > 0 inflates the kernel in covariance space: invert the
// precision matrix, add (addDiagonal * binsize)^2 to each diagonal
// term, invert back. That puts a floor of about addDiagonal grid cells
// under the kernel width even for very well-constrained stars.
//
// The Gaussian is evaluated on a subgrid oversampled by `oversample`
// along each axis then box-averaged down, which anti-aliases kernels
// whose width is comparable to the bin size. The result is normalized
// so its center cell equals exactly 1 -- peak-normalized, not
// sum-normalized: total mass in a surface is governed by the deposit
// weights, and the kernel must not rescale the mode. Keep it that way.
func CovKernel(c00, c01, c11 float64, rect Rect, nSigma float64, minWidth int,
	addDiagonal float64, oversample int) dmath.FloatGrid {

	if addDiagonal > 0.0 {
		d0 := addDiagonal * rect.Dx[0]
		d1 := addDiagonal * rect.Dx[1]

		det := c00*c11 - c01*c01
		if math.Abs(det) < detEps { det = detEps }
		cov00 := c11 / det
		cov11 := c00 / det
		cov01 := -c01 / det

		cov00 += d0 * d0
		cov11 += d1 * d1

		det = cov00*cov11 - cov01*cov01
		c00 = cov11 / det
		c11 = cov00 / det
		c01 = -cov01 / det
	}

	// Per-axis standard deviations, straight from the precision matrix
	det := c00*c11 - c01*c01 + detEps
	sigma := [2]float64{
		math.Sqrt(c11 / det),
		math.Sqrt(c00 / det),
	}

	var width [2]int
	for i:=0; i<2; i++ {
		width[i] = int(math.Ceil(nSigma * sigma[i] / rect.Dx[i]))
		if width[i] < minWidth { width[i] = minWidth }
	}

	w := 2*width[0] + 1
	h := 2*width[1] + 1

	if oversample < 1 { oversample = 1 }
	wSub := oversample * w
	hSub := oversample * h

	// Center of the oversampled raster
	x0 := 0.5 * float64(wSub-1)
	y0 := 0.5 * float64(hSub-1)

	sub := dmath.NewFloatGrid(wSub, hSub)
	for j:=0; j<hSub; j++ {
		dy := (float64(j) - y0) * rect.Dx[1] / float64(oversample)
		cyy := c11 * dy * dy

		for i:=0; i<wSub; i++ {
			dx := (float64(i) - x0) * rect.Dx[0] / float64(oversample)
			cxx := c00 * dx * dx
			cxy := c01 * dx * dy

			sub.Set(i, j, math.Exp(-0.5*(cxx+2.0*cxy+cyy)))
		}
	}

	kernel := sub.BoxDownsample(oversample)

	// Divide (not multiply-by-reciprocal): the center cell must come
	// out exactly 1.0.
	peak := kernel.Get(width[0], width[1])
	for j:=0; j<h; j++ {
		for i:=0; i<w; i++ {
			kernel.Set(i, j, kernel.Get(i, j)/peak)
		}
	}

	return kernel
}
