package main

import(
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/skypies/util/histogram"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/dustgrid/pkg/dstack"
	"github.com/abworrall/dustgrid/pkg/photom"
	"github.com/abworrall/dustgrid/pkg/pixstore"
	"github.com/abworrall/dustgrid/pkg/stellar"
)

var(
	Log *log.Logger

	fConfigFilename string
	fDBFilename string
	fTemplateFilename string
	fLFFilename string
	fErrFloor float64
	fUsePriors bool
	fUseParallax bool
	fVerbosity int
	fDumpDir string
	fSynth int
)

func init() {
	flag.StringVar(&fConfigFilename, "c", "", "yaml run configuration")
	flag.StringVar(&fDBFilename, "db", "dustgrid.sqlite", "photometry + output database")
	flag.StringVar(&fTemplateFilename, "templates", "", "SED template table (overrides config)")
	flag.StringVar(&fLFFilename, "lf", "", "luminosity function table (overrides config)")
	flag.Float64Var(&fErrFloor, "errfloor", 0.02, "photometric error floor, mags")
	flag.BoolVar(&fUsePriors, "priors", true, "apply the Galactic structure prior")
	flag.BoolVar(&fUseParallax, "parallax", true, "apply the parallax consistency term")
	flag.IntVar(&fVerbosity, "v", 1, "verbosity (0..2)")
	flag.StringVar(&fDumpDir, "dump", "", "if set, dump per-star surface images here")
	flag.IntVar(&fSynth, "synth", 0, "generate this many mock stars into the db, then exit")
	flag.Parse()

	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	Log.Printf("Starting\n")
}

func main() {
	cfg := dstack.NewConfig()
	if fConfigFilename != "" {
		var err error
		if cfg, err = dstack.LoadConfig(fConfigFilename); err != nil {
			Log.Fatal(err)
		}
	}

	// Command line overrides
	if fTemplateFilename != "" { cfg.TemplateFile = fTemplateFilename }
	if fLFFilename != "" { cfg.LFFile = fLFFilename }
	cfg.UsePriors = fUsePriors
	cfg.UseParallax = fUseParallax
	cfg.Verbosity = fVerbosity

	lib, err := stellar.LoadTemplates(cfg.TemplateFile, photom.NBands)
	if err != nil {
		Log.Fatal(err)
	}
	if cfg.LFFile != "" {
		if err := lib.LoadLF(cfg.LFFile); err != nil {
			Log.Fatal(err)
		}
	}
	ext := stellar.DefaultExtinction()

	store, err := pixstore.Open(fDBFilename)
	if err != nil {
		Log.Fatal(err)
	}
	defer store.Close()

	if fSynth > 0 {
		synthesize(store, lib, ext, cfg)
		return
	}

	names, err := store.LoadPixelNames()
	if err != nil {
		Log.Fatal(err)
	}
	Log.Printf("%d pixels in '%s'\n", len(names), fDBFilename)

	for _, name := range names {
		if err := processPixel(store, lib, ext, cfg, name); err != nil {
			// One pixel failing shouldn't take out the rest of the run
			Log.Printf("pixel %s FAILED: %v\n", name, err)
		}
	}
}

// processPixel is the per-pixel state machine: LOADED, GRID_EVALUATED,
// FILTERED, CULLED, SMOOTHED, SAVED -- or SKIPPED if a previous run
// already wrote this pixel's dataset.
func processPixel(store *pixstore.Store, lib stellar.Library, ext stellar.ExtinctionModel,
	cfg dstack.Config, name string) error {

	if done, err := store.HasSurfaces(name); err != nil {
		return err
	} else if done {
		Log.Printf("pixel %s already complete, skipping\n", name)
		return nil
	}

	pix, err := store.LoadPixel(name, fErrFloor)
	if err != nil {
		return err
	}
	if len(pix.Stars) == 0 {
		Log.Printf("pixel %s has no stars, skipping\n", name)
		return nil
	}
	Log.Printf("Loaded %s\n", pix)

	tStart := time.Now()

	// Grid evaluation, one worker-owned surface per star
	stack := dstack.NewImgStack(cfg.GridRect(), len(pix.Stars))
	prior := stellar.NewDiskHaloPrior(pix.L, pix.B)
	ev := dstack.NewEvaluator(lib, ext, prior, cfg)
	chi2pp := ev.EvalAll(pix.Stars, stack)

	tEval := time.Now()

	// Trim to the physical (E, mu) range
	stack.Crop(cfg.Crop.EMin, cfg.Crop.EMax, cfg.Crop.MuMin, cfg.Crop.MuMax)

	// Cull stars that fit no template acceptably; the mask also
	// filters the parallel chi2 array, to keep indexes aligned
	keep := make([]bool, len(chi2pp))
	nKept := 0
	for i, x := range chi2pp {
		keep[i] = x <= cfg.Chi2Cut
		if keep[i] { nKept++ }
	}
	stack.Cull(keep)
	chi2pp = dstack.CullFloats(chi2pp, keep)

	// Reddening-axis smoothing, wider at larger E
	if cfg.SmoothingPctMax > 0.0 {
		Log.Printf("Smoothing surfaces along reddening axis\n")
		stack.Smooth(cfg.SmoothingSigmas(stack.Rect.NBins[0]))
	}

	tSmooth := time.Now()

	if err := store.SaveSurfaces(pix, stack, chi2pp); err != nil {
		return err
	}

	tEnd := time.Now()

	if fDumpDir != "" {
		dumpSurfaces(pix, stack)
	}

	if cfg.Verbosity >= 1 {
		logChi2Summary(pix.Name, chi2pp)

		nStars := len(pix.Stars)
		Log.Printf("pixel %s: %d/%d stars kept; per star eval=%.1fms smooth=%.1fms write=%.1fms\n",
			pix.Name, nKept, nStars,
			float64(tEval.Sub(tStart).Milliseconds())/float64(nStars),
			float64(tSmooth.Sub(tEval).Milliseconds())/float64(nStars),
			float64(tEnd.Sub(tSmooth).Milliseconds())/float64(nStars))
	}

	return nil
}

// logChi2Summary prints the distribution of chi2 per passband across
// the pixel's retained stars.
func logChi2Summary(name string, chi2pp []float64) {
	hist := histogram.Histogram{NumBuckets: 20, ValMin: 0, ValMax: 20}
	finite := []float64{}

	for _, x := range chi2pp {
		if math.IsInf(x, 1) { continue }
		hist.Add(histogram.ScalarVal(int(x)))
		finite = append(finite, x)
	}

	if len(finite) == 0 {
		Log.Printf("pixel %s: no finite chi2/passband values\n", name)
		return
	}

	mean, stddev := stat.MeanStdDev(finite, nil)
	Log.Printf("pixel %s: chi2/passband mean=%.2f stddev=%.2f\n", name, mean, stddev)
	Log.Printf("pixel %s: chi2/passband %v\n", name, hist)
}

func dumpSurfaces(pix photom.Pixel, stack *dstack.ImgStack) {
	for i, g := range stack.Imgs {
		title := fmt.Sprintf("%s #%d", pix.Name, i)
		g.ToImg(title, filepath.Join(fDumpDir, fmt.Sprintf("%s-%03d.png", pix.Name, i)))
		if err := g.ToTIFF(filepath.Join(fDumpDir, fmt.Sprintf("%s-%03d.tif", pix.Name, i))); err != nil {
			Log.Printf("tiff dump failed: %v\n", err)
		}
	}
}

// synthesize fakes up photometry from the model itself and stores it,
// grouped into sky pixels, so the pipeline can be exercised without
// survey data.
func synthesize(store *pixstore.Store, lib stellar.Library, ext stellar.ExtinctionModel, cfg dstack.Config) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// A sightline out of the plane, away from the bulge
	l, b := 90.0, 10.0
	stars := photom.DrawFromModel(rng, fSynth, l, b, lib, ext, cfg.RV,
		cfg.Crop.MuMin+1.0, cfg.Crop.MuMax-1.0, cfg.Crop.EMax/4.0, 0.05)

	pixels := photom.GroupByCell(stars, 10)
	for _, pix := range pixels {
		if err := store.SaveStars(pix); err != nil {
			Log.Fatal(err)
		}
		Log.Printf("stored %s\n", pix)
	}
}
