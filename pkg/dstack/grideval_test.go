package dstack

import (
	"math"
	"testing"

	"github.com/abworrall/dustgrid/pkg/photom"
	"github.com/abworrall/dustgrid/pkg/stellar"
)

// stubLib is an in-memory Library over a tiny (Mr, FeH) grid, with
// optional holes.
type stubLib struct {
	nMr, nFeH int
	seds      map[[2]int]stellar.SED
}

func (l stubLib)Dims() (int, int) { return l.nMr, l.nFeH }
func (l stubLib)LogLF(mr float64) float64 { return 0.0 }
func (l stubLib)SED(i, j int) (stellar.SED, float64, float64, bool) {
	sed, ok := l.seds[[2]int{i, j}]
	return sed, float64(i), float64(j), ok
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.Grid = GridSpec{EMin: 0, EMax: 1, NEBins: 10, MuMin: 0, MuMax: 15, NMuBins: 10}
	cfg.UsePriors = false
	cfg.UseParallax = false
	cfg.Workers = 1
	return cfg
}

func TestEvalStarDominantMode(t *testing.T) {
	// One template, two bands, magnitudes generated exactly at
	// mu = 7.5, E = 0.5: the deposited + smoothed surface must have
	// its mode at that point.
	sed := stellar.SED{1.0, 2.0, 0, 0, 0}
	lib := stubLib{1, 1, map[[2]int]stellar.SED{{0, 0}: sed}}
	ext := twoBandExt()
	rec := twoBandRecord(1.0+7.5+0.5*1.5, 2.0+7.5+0.5*1.0, 0.05)

	cfg := testConfig()
	ev := NewEvaluator(lib, ext, stellar.FlatPrior{}, cfg)
	stack := NewImgStack(cfg.GridRect(), 1)

	chi2pp := ev.EvalStar(&rec, stack, 0)

	if chi2pp < 0 || chi2pp > 1e-12 {
		t.Errorf("chi2/passband = %v, want ~0 for an exact fit", chi2pp)
	}
	if stack.Imgs[0].Sum() <= 0 {
		t.Fatal("surface has no mass")
	}

	// Locate the mode
	bestX, bestY, best := 0, 0, -1.0
	for y:=0; y<10; y++ {
		for x:=0; x<10; x++ {
			if v := stack.Imgs[0].Get(x, y); v > best {
				bestX, bestY, best = x, y, v
			}
		}
	}
	e, mu := stack.Rect.BinCenter(bestX, bestY)
	if math.Abs(e-0.5) > stack.Rect.Dx[0] || math.Abs(mu-7.5) > stack.Rect.Dx[1] {
		t.Errorf("mode at (E=%v, mu=%v), want near (0.5, 7.5)", e, mu)
	}
}

func TestEvalStarOutOfBoundsSolutionDropsSilently(t *testing.T) {
	// The canonical two-band star solves to (mu, E) = (10.1, 2.8);
	// E = 2.8 is off this grid, so the deposit is dropped and the
	// surface stays empty. That's policy, not an error.
	sed := stellar.SED{1.0, 2.0, 0, 0, 0}
	lib := stubLib{1, 1, map[[2]int]stellar.SED{{0, 0}: sed}}
	rec := twoBandRecord(15.3, 14.9, 0.05)

	cfg := testConfig()
	ev := NewEvaluator(lib, twoBandExt(), stellar.FlatPrior{}, cfg)
	stack := NewImgStack(cfg.GridRect(), 1)

	chi2pp := ev.EvalStar(&rec, stack, 0)

	if math.IsInf(chi2pp, 1) || math.IsNaN(chi2pp) {
		t.Errorf("chi2/passband = %v, want finite (the fit itself is fine)", chi2pp)
	}
	if sum := stack.Imgs[0].Sum(); sum != 0 {
		t.Errorf("surface mass = %v, want 0 for out-of-bounds solution", sum)
	}
}

func TestEvalStarAllBandsMissing(t *testing.T) {
	lib := stubLib{1, 1, map[[2]int]stellar.SED{{0, 0}: {1, 1, 1, 1, 1}}}
	rec := photom.Record{PiErr: math.Inf(1)}
	for i:=0; i<photom.NBands; i++ {
		rec.Err[i] = 2.0 * photom.MissingErrThreshold
	}

	cfg := testConfig()
	ev := NewEvaluator(lib, twoBandExt(), stellar.FlatPrior{}, cfg)
	stack := NewImgStack(cfg.GridRect(), 1)

	chi2pp := ev.EvalStar(&rec, stack, 0)

	if !math.IsInf(chi2pp, 1) {
		t.Errorf("chi2/passband = %v, want +Inf for a star with no bands", chi2pp)
	}
	if stack.Imgs[0].Sum() != 0 {
		t.Error("degenerate star deposited mass")
	}
}

func TestEvalStarSkipsMissingTemplates(t *testing.T) {
	// A library with holes: absent cells are skipped, present ones
	// still evaluated
	sed := stellar.SED{1.0, 2.0, 0, 0, 0}
	lib := stubLib{3, 3, map[[2]int]stellar.SED{
		{0, 0}: sed, {2, 2}: {1.1, 2.1, 0, 0, 0},
	}}
	rec := twoBandRecord(1.0+7.5+0.5*1.5, 2.0+7.5+0.5*1.0, 0.05)

	cfg := testConfig()
	ev := NewEvaluator(lib, twoBandExt(), stellar.FlatPrior{}, cfg)
	stack := NewImgStack(cfg.GridRect(), 1)

	chi2pp := ev.EvalStar(&rec, stack, 0)
	if chi2pp > 1e-12 {
		t.Errorf("chi2/passband = %v; the exact template should still win", chi2pp)
	}
	if stack.Imgs[0].Sum() <= 0 {
		t.Error("no mass deposited despite valid templates")
	}
}

func TestEvalAllMatchesSequential(t *testing.T) {
	// The worker pool must produce bit-identical results to a
	// sequential run, whatever the scheduling.
	lib := stubLib{4, 2, map[[2]int]stellar.SED{
		{0, 0}: {1.0, 2.0, 0, 0, 0}, {1, 0}: {1.5, 2.4, 0, 0, 0},
		{2, 0}: {2.0, 2.8, 0, 0, 0}, {3, 1}: {2.5, 3.2, 0, 0, 0},
		{0, 1}: {1.1, 2.1, 0, 0, 0}, {1, 1}: {1.6, 2.5, 0, 0, 0},
	}}
	ext := twoBandExt()

	stars := []photom.Record{
		twoBandRecord(9.25, 10.0, 0.05),
		twoBandRecord(9.50, 10.1, 0.08),
		twoBandRecord(10.1, 10.9, 0.03),
	}

	cfg := testConfig()
	seqEv := NewEvaluator(lib, ext, stellar.FlatPrior{}, cfg)
	seqStack := NewImgStack(cfg.GridRect(), len(stars))
	seqChi2 := make([]float64, len(stars))
	for i := range stars {
		seqChi2[i] = seqEv.EvalStar(&stars[i], seqStack, i)
	}

	cfg.Workers = 3
	parEv := NewEvaluator(lib, ext, stellar.FlatPrior{}, cfg)
	parStack := NewImgStack(cfg.GridRect(), len(stars))
	parChi2 := parEv.EvalAll(stars, parStack)

	for i := range stars {
		if seqChi2[i] != parChi2[i] {
			t.Errorf("star %d: chi2 %v (seq) vs %v (pool)", i, seqChi2[i], parChi2[i])
		}
		if !seqStack.Imgs[i].EqualWithin(parStack.Imgs[i], 0) {
			t.Errorf("star %d: surfaces differ between seq and pool runs", i)
		}
	}
}
