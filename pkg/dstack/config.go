package dstack

import(
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"
)

/* Example config file ...

rv: 3.1
usepriors: true
useparallax: true
nsigma: 5
minkernelwidth: 2
kerneloversample: 5
adddiagonal: 1.0

grid:
  emin: -0.2
  emax: 7.2
  nebins: 740
  mumin: 3.75
  mumax: 19.25
  nmubins: 124

crop:
  emin: 0.0
  emax: 7.0
  mumin: 4.0
  mumax: 19.0

smoothingpctmax: 0.05
chi2cut: 6.0

templatefile: PSMrLF.dat
lffile: MrLF.dat
*/

type GridSpec struct {
	EMin, EMax   float64
	NEBins       int
	MuMin, MuMax float64
	NMuBins      int
}

type CropSpec struct {
	EMin, EMax   float64
	MuMin, MuMax float64
}

type Config struct {
	RV               float64
	UsePriors        bool
	UseParallax      bool

	NSigma           float64
	MinKernelWidth   int
	KernelOversample int
	AddDiagonal      float64

	Grid             GridSpec
	Crop             CropSpec

	// Reddening-axis smoothing: sigma at E bin i is
	// SmoothingPctMax * binwidth * i (wider smoothing at larger E).
	// Zero disables the pass.
	SmoothingPctMax  float64

	// Stars whose chi2/passband exceeds this are culled before
	// saving. +Inf (the default) keeps everything.
	Chi2Cut          float64

	Workers          int
	Verbosity        int

	TemplateFile     string
	LFFile           string
}

func NewConfig() Config {
	return Config{
		RV:               3.1,
		NSigma:           5.0,
		MinKernelWidth:   2,
		KernelOversample: 5,
		AddDiagonal:      1.0,
		Grid:  GridSpec{EMin: -0.2, EMax: 7.2, NEBins: 740, MuMin: 3.75, MuMax: 19.25, NMuBins: 124},
		Crop:  CropSpec{EMin: 0.0, EMax: 7.0, MuMin: 4.0, MuMax: 19.0},
		Chi2Cut:  math.Inf(1),
		Workers:  runtime.GOMAXPROCS(0),
	}
}

func LoadConfig(filename string) (Config, error) {
	c := NewConfig()

	contents, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("config read '%s': %v", filename, err)
	}
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("config parse '%s': %v", filename, err)
	}

	return c, c.FinalizeConfig()
}

// FinalizeConfig does sanity checks and fills in defaults for fields
// a config file zeroed out.
func (c *Config)FinalizeConfig() error {
	if c.Grid.NEBins <= 1 || c.Grid.NMuBins <= 1 {
		return fmt.Errorf("grid needs >1 bin per axis, got %dx%d", c.Grid.NEBins, c.Grid.NMuBins)
	}
	if c.Grid.EMax <= c.Grid.EMin || c.Grid.MuMax <= c.Grid.MuMin {
		return fmt.Errorf("grid bounds are inverted")
	}
	if c.RV <= 0.0 { c.RV = 3.1 }
	if c.NSigma <= 0.0 { c.NSigma = 5.0 }
	if c.MinKernelWidth < 1 { c.MinKernelWidth = 2 }
	if c.KernelOversample < 1 { c.KernelOversample = 5 }
	if c.Chi2Cut <= 0.0 { c.Chi2Cut = math.Inf(1) }
	if c.Workers < 1 { c.Workers = runtime.GOMAXPROCS(0) }

	return nil
}

// GridRect builds the evaluation Rect the config describes.
func (c Config)GridRect() Rect {
	return NewRect(
		[2]float64{c.Grid.EMin, c.Grid.MuMin},
		[2]float64{c.Grid.EMax, c.Grid.MuMax},
		[2]int{c.Grid.NEBins, c.Grid.NMuBins},
	)
}

// SmoothingSigmas builds the per-bin reddening smoothing ramp for the
// current grid: sigma (in bins) grows linearly with the E bin index.
func (c Config)SmoothingSigmas(nEBins int) []float64 {
	sigmas := make([]float64, nEBins)
	for i := range sigmas {
		sigmas[i] = c.SmoothingPctMax * float64(i)
	}
	return sigmas
}
