package stellar

import(
	"math"
)

// DiskHaloPrior is the empirical Galactic structure prior: thin and
// thick exponential disks plus a flattened power-law halo, evaluated
// along one sightline. The returned log prior combines the stellar
// number density at the implied 3-D position with the volume element
// per unit distance modulus, plus a broad metallicity term whose mean
// falls with height above the plane.
type DiskHaloPrior struct {
	L, B float64 // sightline, galactic degrees

	// Structural parameters, parsecs. Zero value is unusable; use
	// NewDiskHaloPrior for the standard values.
	R0, Z0          float64 // solar position
	H1, L1          float64 // thin disk scale height/length
	FThick, H2, L2  float64 // thick disk fraction and scales
	FHalo, QHalo    float64 // halo fraction, flattening
	NHalo           float64 // halo density power-law index

	cosL, sinL, cosB, sinB float64
}

func NewDiskHaloPrior(l, b float64) *DiskHaloPrior {
	p := &DiskHaloPrior{
		L: l, B: b,
		R0: 8000.0, Z0: 25.0,
		H1: 300.0, L1: 2600.0,
		FThick: 0.12, H2: 900.0, L2: 3600.0,
		FHalo: 0.003, QHalo: 0.70, NHalo: -2.62,
	}
	lRad, bRad := l*math.Pi/180.0, b*math.Pi/180.0
	p.cosL, p.sinL = math.Cos(lRad), math.Sin(lRad)
	p.cosB, p.sinB = math.Cos(bRad), math.Sin(bRad)
	return p
}

// rho returns the (unnormalized) stellar number density at distance d
// parsecs along the sightline.
func (p *DiskHaloPrior)rho(d float64) float64 {
	x := p.R0 - p.cosL*p.cosB*d
	y := -p.sinL * p.cosB * d
	z := p.Z0 + p.sinB*d

	r := math.Sqrt(x*x + y*y)
	absZ := math.Abs(z)

	rhoThin := math.Exp(-(r-p.R0)/p.L1 - absZ/p.H1)
	rhoThick := p.FThick * math.Exp(-(r-p.R0)/p.L2 - absZ/p.H2)

	rEff := math.Sqrt(r*r + (z/p.QHalo)*(z/p.QHalo))
	rhoHalo := p.FHalo * math.Pow(rEff/p.R0, p.NHalo)

	return rhoThin + rhoThick + rhoHalo
}

// meanFeH is the mean disk metallicity as a function of height above
// the plane (Ivezic et al. 2008 shape).
func (p *DiskHaloPrior)meanFeH(d float64) float64 {
	z := math.Abs(p.Z0 + p.sinB*d)
	return -0.89 + 0.63*math.Exp(-z/500.0)
}

func (p *DiskHaloPrior)LogPriorEmp(mu, mr, feh float64) float64 {
	d := math.Pow(10.0, mu/5.0+1.0) // parsecs

	// dN/dmu ~ rho(d) * d^3  (volume element x distance modulus Jacobian)
	lnP := math.Log(p.rho(d)) + 3.0*math.Log(d)

	// Broad Gaussian in metallicity about the height-dependent mean
	dFeH := feh - p.meanFeH(d)
	lnP += -0.5 * dFeH * dFeH / (0.32 * 0.32)

	return lnP
}
