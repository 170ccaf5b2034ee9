package stellar

// FixedExtinction is an ExtinctionModel with one coefficient per band
// at a reference total-to-selective ratio, plus a per-band linear
// gradient in RV. Good enough everywhere the grid evaluation needs it;
// anything fancier hides behind the same interface.
type FixedExtinction struct {
	RV0    float64
	Coeffs []float64
	DDRv   []float64 // dA/dRV per band; nil means no RV dependence
}

func (m FixedExtinction)Coeff(rv float64, band int) float64 {
	a := m.Coeffs[band]
	if m.DDRv != nil {
		a += m.DDRv[band] * (rv - m.RV0)
	}
	return a
}

// DefaultExtinction returns the grizy reddening vector at RV = 3.1
// (Schlafly & Finkbeiner 2011 scaling of the PS1 bands).
func DefaultExtinction() FixedExtinction {
	return FixedExtinction{
		RV0:    3.1,
		Coeffs: []float64{3.172, 2.271, 1.682, 1.322, 1.087},
	}
}
