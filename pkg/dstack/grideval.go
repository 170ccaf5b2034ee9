package dstack

import(
	"log"
	"math"
	"sync"

	"github.com/abworrall/dustgrid/pkg/photom"
	"github.com/abworrall/dustgrid/pkg/stellar"
)

// An Evaluator drives the per-template solver across the full SED
// library for each star, depositing the results into that star's
// surface. It holds no per-star state, so one Evaluator is shared by
// all workers.
type Evaluator struct {
	Lib   stellar.Library
	Ext   stellar.ExtinctionModel
	Prior stellar.GalacticPriorModel
	Config
}

func NewEvaluator(lib stellar.Library, ext stellar.ExtinctionModel, prior stellar.GalacticPriorModel, cfg Config) *Evaluator {
	return &Evaluator{Lib: lib, Ext: ext, Prior: prior, Config: cfg}
}

// mlCell is one recorded grid-cell solution from pass 1.
type mlCell struct {
	e, mu, chi2, prior float64
}

// EvalStar fills surface idx of the stack with the star's posterior
// over (E, mu), and returns its min-chi2 per valid passband (a data
// quality number for the caller's filtering; +Inf when the star has
// no usable bands).
//
// Two passes over the template grid: pass 1 solves every cell and
// tracks the global min chi2 and max log-prior; pass 2 subtracts them
// before exponentiating, so the weights can neither overflow nor
// vanish, then deposits bilinearly. The min/max ride along as explicit
// locals threaded through the traversal -- the relative weights that
// matter are unchanged by the subtraction.
func (ev *Evaluator)EvalStar(rec *photom.Record, stack *ImgStack, idx int) float64 {
	nMr, nFeH := ev.Lib.Dims()

	// Template-independent precision terms, once per star
	c00, c01, c11 := StarInvCov(rec, ev.Ext, ev.RV)

	stack.InitToZero(idx)

	cells := make([]mlCell, 0, nMr*nFeH+1)
	chi2Min := math.Inf(1)
	priorMax := math.Inf(-1)

	for mrIdx:=0; mrIdx<nMr; mrIdx++ {
		for fehIdx:=0; fehIdx<nFeH; fehIdx++ {
			sed, mr, feh, ok := ev.Lib.SED(mrIdx, fehIdx)
			if !ok {
				if ev.Verbosity >= 2 {
					log.Printf("SED (%d,%d) not in library, skipping\n", mrIdx, fehIdx)
				}
				continue
			}

			mu, e, chi2 := MaxLikelihood(sed, rec, ev.Ext, c00, c01, c11, ev.RV)
			if math.IsInf(chi2, 1) { continue }

			prior := 0.0
			if ev.UsePriors {
				prior += ev.Prior.LogPriorEmp(mu, mr, feh) + ev.Lib.LogLF(mr)
			}
			if ev.UseParallax && !math.IsInf(rec.PiErr, 1) {
				piModel := math.Pow(10.0, -(mu+5.0)/5.0)
				dPi := rec.Pi - piModel
				prior += -0.5 * dPi * dPi / (rec.PiErr * rec.PiErr)
			}

			cells = append(cells, mlCell{e, mu, chi2, prior})
			if chi2 < chi2Min { chi2Min = chi2 }
			if prior > priorMax { priorMax = prior }
		}
	}

	if ev.Verbosity >= 2 {
		log.Printf("star %d: %d/%d cells, chi2_min=%.3f prior_max=%.3f\n",
			idx, len(cells), nMr*nFeH, chi2Min, priorMax)
	}

	for _, c := range cells {
		i0, i1, a0, a1, inBounds := stack.Rect.Interpolant(c.e, c.mu)
		if !inBounds {
			// Dropped on the floor: solutions outside the grid are
			// lossy by design, not an error.
			continue
		}

		logP := -0.5*(c.chi2-chi2Min) + (c.prior - priorMax)
		p := math.Exp(logP)

		img := stack.Imgs[idx]
		img.Add(i0,   i1,   (1-a0)*(1-a1)*p)
		img.Add(i0+1, i1,   a0*(1-a1)*p)
		img.Add(i0,   i1+1, (1-a0)*a1*p)
		img.Add(i0+1, i1+1, a0*a1*p)
	}

	// Smooth with the star's own fit covariance. The solver matrix is
	// in (mu, E) order; the raster is (E, mu), hence the swap.
	if len(cells) > 0 {
		kernel := CovKernel(c11, c01, c00, stack.Rect,
			ev.NSigma, ev.MinKernelWidth, ev.AddDiagonal, ev.KernelOversample)
		g := stack.Imgs[idx].Correlate(&kernel)
		stack.Imgs[idx] = &g
	}

	n := rec.NumPassbands()
	if n == 0 {
		return math.Inf(1)
	}
	return chi2Min / float64(n)
}

// EvalAll runs EvalStar for every star on a small worker pool. Each
// worker exclusively owns the surface slots it is handed and writes
// its chi2 into its own index, so there is no shared mutable state to
// lock. Results are identical to a sequential run.
func (ev *Evaluator)EvalAll(stars []photom.Record, stack *ImgStack) []float64 {
	chi2 := make([]float64, len(stars))

	workers := ev.Workers
	if workers < 1 { workers = 1 }
	if workers > len(stars) { workers = len(stars) }

	idxCh := make(chan int)
	var wg sync.WaitGroup

	for w:=0; w<workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				chi2[i] = ev.EvalStar(&stars[i], stack, i)
			}
		}()
	}

	for i := range stars {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	return chi2
}
