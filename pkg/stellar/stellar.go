// Package stellar provides the model inputs the grid evaluation
// consumes: the SED template library, the extinction coefficient
// model, and the Galactic structure prior. The engine only ever sees
// the interfaces; the bundled implementations are table/file backed.
package stellar

// An SED is a template star's absolute magnitude in each passband.
// Implementations may return a view into backing storage; callers must
// not mutate it.
type SED []float64

// Library indexes SED templates on a regular 2-D grid of absolute
// magnitude (Mr) and metallicity (FeH).
type Library interface {
	// SED returns the template at the given grid indices, plus its
	// physical (Mr, FeH). ok=false when the cell is absent from the
	// library.
	SED(mrIdx, fehIdx int) (sed SED, mr, feh float64, ok bool)

	// Dims returns the grid extents (nMr, nFeH).
	Dims() (int, int)

	// LogLF is the log luminosity function at Mr: the relative number
	// density of stars of that absolute magnitude.
	LogLF(mr float64) float64
}

// ExtinctionModel maps a reddening normalization to per-band
// extinction: A_band = E * Coeff(rv, band).
type ExtinctionModel interface {
	Coeff(rv float64, band int) float64
}

// GalacticPriorModel scores how likely a star of the given type is to
// sit at the given distance along the current sightline.
type GalacticPriorModel interface {
	LogPriorEmp(mu, mr, feh float64) float64
}

// FlatPrior ignores Galactic structure entirely. Used in tests and
// when running without priors.
type FlatPrior struct{}

func (FlatPrior)LogPriorEmp(mu, mr, feh float64) float64 { return 0.0 }
