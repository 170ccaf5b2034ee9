package dstack

import(
	"math"

	"github.com/abworrall/dustgrid/pkg/photom"
	"github.com/abworrall/dustgrid/pkg/stellar"
)

// detEps guards the 2x2 inversions against a near-singular precision
// matrix. It bounds the approximation error instead of dividing by
// zero when a star has (nearly) no constraining bands.
const detEps = 1.0e-5

// A LinearFit is the closed-form ML solution for one (star, template)
// pair: the best-fit (mu, E), the residual chi2 there, and the 2x2
// precision (inverse covariance) matrix of the estimate. The matrix is
// in (mu, E) order.
type LinearFit struct {
	Mean   [2]float64
	InvCov [2][2]float64
	Chi2   float64
}

// StarInvCov accumulates the template-independent precision terms for
// one star: inverse-variance sums over the extinction coefficients.
// These double as the normal-equations matrix for every template, so
// they are computed once per star, not once per grid cell.
//
//	c00 = sum 1/sigma_i^2
//	c01 = sum A_i/sigma_i^2
//	c11 = sum A_i^2/sigma_i^2
func StarInvCov(rec *photom.Record, ext stellar.ExtinctionModel, rv float64) (c00, c01, c11 float64) {
	for i:=0; i<photom.NBands; i++ {
		if !rec.BandValid(i) { continue }

		a := ext.Coeff(rv, i)
		ivar := 1.0 / (rec.Err[i] * rec.Err[i])

		c00 += ivar
		c01 += a * ivar
		c11 += a * a * ivar
	}
	return
}

// MaxLikelihood solves for the (mu, E) minimizing
//
//	sum_i [ (m_i - M_i - mu - E*A_i) / sigma_i ]^2
//
// given one template's absolute magnitudes and the star's precision
// terms from StarInvCov. The problem is linear in (mu, E), so the
// minimizer falls out of the 2x2 normal equations; the algebra is
// deliberately hand-unrolled scalar arithmetic, since this runs once
// per template cell, tens of thousands of times per star.
//
// A star with no valid bands has c00 = c11 = 0; that degenerate case
// comes back as (0, 0, +Inf) and must contribute nothing.
func MaxLikelihood(sed stellar.SED, rec *photom.Record, ext stellar.ExtinctionModel,
	c00, c01, c11 float64, rv float64) (mu, e, chi2 float64) {

	if c00 <= 0.0 || c11 <= 0.0 {
		return 0.0, 0.0, math.Inf(1)
	}

	dmSum := 0.0   // sum (m_i - M_i) / sigma_i^2
	dmASum := 0.0  // sum (m_i - M_i) A_i / sigma_i^2

	for i:=0; i<photom.NBands; i++ {
		if !rec.BandValid(i) { continue }

		a := ext.Coeff(rv, i)
		ivar := 1.0 / (rec.Err[i] * rec.Err[i])
		dm := rec.Mag[i] - sed[i]

		dmSum += dm * ivar
		dmASum += dm * a * ivar
	}

	mu0 := dmSum / c00
	e0 := dmASum / c11

	cr01 := c01 / c00
	cr10 := c01 / c11

	// Solve (1 + C) (mu E)^T = (mu0 E0)^T
	det := 1.0 - cr01*cr10
	if math.Abs(det) < detEps { det = detEps }
	detInv := 1.0 / det

	mu = detInv * (mu0 - cr01*e0)
	e = detInv * (e0 - cr10*mu0)

	// chi2 at the optimum, by substitution
	chi2 = 0.0
	for i:=0; i<photom.NBands; i++ {
		if !rec.BandValid(i) { continue }

		a := ext.Coeff(rv, i)
		ivar := 1.0 / (rec.Err[i] * rec.Err[i])
		dm := rec.Mag[i] - sed[i]

		delta := dm - e*a - mu
		chi2 += delta * delta * ivar
	}

	return mu, e, chi2
}

// FitLinear packages a full LinearFit: MaxLikelihood plus the shared
// precision matrix. Callers in the hot path use MaxLikelihood
// directly; this is for anything that wants the covariance too.
func FitLinear(sed stellar.SED, rec *photom.Record, ext stellar.ExtinctionModel, rv float64) LinearFit {
	c00, c01, c11 := StarInvCov(rec, ext, rv)
	mu, e, chi2 := MaxLikelihood(sed, rec, ext, c00, c01, c11, rv)

	return LinearFit{
		Mean:   [2]float64{mu, e},
		InvCov: [2][2]float64{{c00, c01}, {c01, c11}},
		Chi2:   chi2,
	}
}
