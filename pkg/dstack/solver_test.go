package dstack

import (
	"math"
	"testing"

	"github.com/abworrall/dustgrid/pkg/photom"
	"github.com/abworrall/dustgrid/pkg/stellar"
)

// twoBandExt gives bands 0 and 1 extinction coefficients 1.5 and 1.0;
// the remaining bands are unused in these tests.
func twoBandExt() stellar.FixedExtinction {
	return stellar.FixedExtinction{RV0: 3.1, Coeffs: []float64{1.5, 1.0, 0, 0, 0}}
}

// twoBandRecord builds a record with bands 0 and 1 observed and the
// rest missing.
func twoBandRecord(m0, m1, err float64) photom.Record {
	rec := photom.Record{PiErr: math.Inf(1)}
	for i:=0; i<photom.NBands; i++ {
		rec.Err[i] = 2.0 * photom.MissingErrThreshold
	}
	rec.Mag[0], rec.Err[0] = m0, err
	rec.Mag[1], rec.Err[1] = m1, err
	return rec
}

func TestMaxLikelihoodTwoBand(t *testing.T) {
	// Two bands, two parameters: the fit is exact, so chi2 = 0 and the
	// solution is pinned by hand algebra:
	//   m0 - M0 = mu + 1.5 E = 14.3
	//   m1 - M1 = mu + 1.0 E = 12.9  =>  mu = 10.1, E = 2.8
	sed := stellar.SED{1.0, 2.0, 0, 0, 0}
	rec := twoBandRecord(15.3, 14.9, 0.05)
	ext := twoBandExt()

	c00, c01, c11 := StarInvCov(&rec, ext, 3.1)
	mu, e, chi2 := MaxLikelihood(sed, &rec, ext, c00, c01, c11, 3.1)

	if math.IsNaN(mu) || math.IsInf(mu, 0) || math.IsNaN(e) || math.IsInf(e, 0) {
		t.Fatalf("non-finite solution mu=%v e=%v", mu, e)
	}
	if math.Abs(mu-10.1) > 1e-9 || math.Abs(e-2.8) > 1e-9 {
		t.Errorf("got (mu, E) = (%v, %v), want (10.1, 2.8)", mu, e)
	}
	if chi2 < 0 || chi2 > 1e-15 {
		t.Errorf("chi2 = %v, want ~0", chi2)
	}
}

func TestMaxLikelihoodZeroNoiseRecovery(t *testing.T) {
	// Magnitudes generated exactly from a template at known (mu*, E*)
	// must be recovered to float precision, with chi2 ~ 0, even with
	// more bands than parameters.
	sed := stellar.SED{4.1, 3.7, 3.55, 3.5, 3.48}
	ext := stellar.DefaultExtinction()
	muTrue, eTrue := 11.25, 0.45

	rec := photom.Record{PiErr: math.Inf(1)}
	for i:=0; i<photom.NBands; i++ {
		rec.Mag[i] = sed[i] + muTrue + eTrue*ext.Coeff(3.1, i)
		rec.Err[i] = 0.02 * float64(i+1)
	}

	fit := FitLinear(sed, &rec, ext, 3.1)

	if math.Abs(fit.Mean[0]-muTrue) > 1e-9 {
		t.Errorf("mu = %v, want %v", fit.Mean[0], muTrue)
	}
	if math.Abs(fit.Mean[1]-eTrue) > 1e-9 {
		t.Errorf("E = %v, want %v", fit.Mean[1], eTrue)
	}
	if fit.Chi2 > 1e-12 {
		t.Errorf("chi2 = %v, want ~0", fit.Chi2)
	}

	// The precision matrix is the template-independent normal matrix
	c00, c01, c11 := StarInvCov(&rec, ext, 3.1)
	if fit.InvCov[0][0] != c00 || fit.InvCov[0][1] != c01 || fit.InvCov[1][1] != c11 {
		t.Errorf("InvCov %v disagrees with StarInvCov (%v %v %v)", fit.InvCov, c00, c01, c11)
	}
	if fit.InvCov[0][1] != fit.InvCov[1][0] {
		t.Errorf("InvCov not symmetric: %v", fit.InvCov)
	}
}

func TestMaxLikelihoodAllBandsMissing(t *testing.T) {
	rec := photom.Record{PiErr: math.Inf(1)}
	for i:=0; i<photom.NBands; i++ {
		rec.Err[i] = 2.0 * photom.MissingErrThreshold
	}
	ext := stellar.DefaultExtinction()
	sed := stellar.SED{1, 1, 1, 1, 1}

	c00, c01, c11 := StarInvCov(&rec, ext, 3.1)
	if c00 != 0 || c01 != 0 || c11 != 0 {
		t.Fatalf("expected zero sums for all-missing record, got %v %v %v", c00, c01, c11)
	}

	_, _, chi2 := MaxLikelihood(sed, &rec, ext, c00, c01, c11, 3.1)
	if !math.IsInf(chi2, 1) {
		t.Errorf("chi2 = %v, want +Inf for degenerate fit", chi2)
	}
}

func TestMaxLikelihoodIgnoresMissingBands(t *testing.T) {
	// Adding a missing band must not change the solution at all
	sed := stellar.SED{1.0, 2.0, 3.0, 0, 0}
	ext := stellar.FixedExtinction{RV0: 3.1, Coeffs: []float64{1.5, 1.0, 1.2, 0, 0}}

	rec := twoBandRecord(15.3, 14.9, 0.05)
	fitA := FitLinear(sed, &rec, ext, 3.1)

	rec.Mag[2] = 55.5 // nonsense value behind the missing sentinel
	rec.Err[2] = photom.MissingErrThreshold * 10
	fitB := FitLinear(sed, &rec, ext, 3.1)

	if fitA != fitB {
		t.Errorf("missing band changed the fit: %+v vs %+v", fitA, fitB)
	}
}
