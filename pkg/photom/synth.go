package photom

import(
	"math"
	"math/rand"

	"github.com/abworrall/dustgrid/pkg/stellar"
)

// DrawFromModel fakes up a pixel's worth of photometry from the model
// itself: pick a random template, distance modulus and reddening,
// predict the apparent magnitudes, add Gaussian noise. Handy for
// exercising the pipeline end to end without survey data, and for
// tests that need stars with a known right answer.
func DrawFromModel(rng *rand.Rand, n int, l, b float64,
	lib stellar.Library, ext stellar.ExtinctionModel, rv float64,
	muMin, muMax, eMax, magErr float64) []Record {

	nMr, nFeH := lib.Dims()
	stars := make([]Record, 0, n)

	for len(stars) < n {
		sed, _, _, ok := lib.SED(rng.Intn(nMr), rng.Intn(nFeH))
		if !ok { continue }

		mu := muMin + rng.Float64()*(muMax-muMin)
		e := rng.Float64() * eMax

		rec := Record{
			ObjID: uint64(len(stars)),
			L: l, B: b,
			Pi:    math.Pow(10.0, -(mu+5.0)/5.0),
			PiErr: math.Inf(1),
			EBV:   e,
		}
		for i:=0; i<NBands; i++ {
			rec.Mag[i] = sed[i] + mu + e*ext.Coeff(rv, i) + rng.NormFloat64()*magErr
			rec.Err[i] = magErr
			rec.MagLimit[i] = 23.0
			rec.NDet[i] = 1
		}
		rec.Finalize(0.0)

		stars = append(stars, rec)
	}

	return stars
}
