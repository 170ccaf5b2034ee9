package stellar

import(
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// TableLibrary is a Library backed by a whitespace-separated template
// file: one row per template, "Mr FeH M_0 M_1 ... M_n", on a regular
// (Mr, FeH) grid. Holes in the grid are allowed and reported as
// missing cells.
type TableLibrary struct {
	mrMin, dMr    float64
	fehMin, dFeH  float64
	nMr, nFeH     int
	nBands        int

	seds    []float64 // nMr*nFeH rows of nBands mags, row-major in (mr, feh)
	present []bool

	lfMr0, lfDMr  float64
	lf            []float64 // log luminosity function samples; empty => flat
}

func (t *TableLibrary)Dims() (int, int) { return t.nMr, t.nFeH }

func (t *TableLibrary)SED(mrIdx, fehIdx int) (SED, float64, float64, bool) {
	if mrIdx < 0 || mrIdx >= t.nMr || fehIdx < 0 || fehIdx >= t.nFeH {
		return nil, 0, 0, false
	}
	cell := mrIdx*t.nFeH + fehIdx
	if !t.present[cell] {
		return nil, 0, 0, false
	}
	mr := t.mrMin + float64(mrIdx)*t.dMr
	feh := t.fehMin + float64(fehIdx)*t.dFeH
	return SED(t.seds[cell*t.nBands : (cell+1)*t.nBands]), mr, feh, true
}

// LogLF looks up the nearest luminosity-function sample. With no LF
// loaded, every Mr is equally likely.
func (t *TableLibrary)LogLF(mr float64) float64 {
	if len(t.lf) == 0 { return 0.0 }
	i := int(math.Round((mr - t.lfMr0) / t.lfDMr))
	if i < 0 { i = 0 }
	if i >= len(t.lf) { i = len(t.lf) - 1 }
	return t.lf[i]
}

// LoadTemplates reads a template table. The grid spacing is inferred
// from the distinct Mr and FeH values present, which must be evenly
// spaced.
func LoadTemplates(filename string, nBands int) (*TableLibrary, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer f.Close()

	rows := []tmplRow{}

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") { continue }

		fields := strings.Fields(line)
		if len(fields) < 2+nBands {
			return nil, fmt.Errorf("template '%s' line %d: want %d fields, got %d",
				filename, lineNum, 2+nBands, len(fields))
		}

		vals := make([]float64, 2+nBands)
		for i:=0; i<2+nBands; i++ {
			if vals[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				return nil, fmt.Errorf("template '%s' line %d: %v", filename, lineNum, err)
			}
		}
		rows = append(rows, tmplRow{vals[0], vals[1], vals[2:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read '%s': %v", filename, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("template '%s': no rows", filename)
	}

	mrAxis := axisOf(rows, func(r tmplRow) float64 { return r.mr })
	fehAxis := axisOf(rows, func(r tmplRow) float64 { return r.feh })

	t := &TableLibrary{
		mrMin: mrAxis.min, dMr: mrAxis.step, nMr: mrAxis.n,
		fehMin: fehAxis.min, dFeH: fehAxis.step, nFeH: fehAxis.n,
		nBands: nBands,
		seds:    make([]float64, mrAxis.n*fehAxis.n*nBands),
		present: make([]bool, mrAxis.n*fehAxis.n),
	}

	for _, r := range rows {
		mrIdx := int(math.Round((r.mr - t.mrMin) / t.dMr))
		fehIdx := int(math.Round((r.feh - t.fehMin) / t.dFeH))
		cell := mrIdx*t.nFeH + fehIdx
		copy(t.seds[cell*nBands:(cell+1)*nBands], r.mags)
		t.present[cell] = true
	}

	return t, nil
}

// LoadLF reads a luminosity function table ("Mr logPhi" rows, evenly
// spaced in Mr) into the library.
func (t *TableLibrary)LoadLF(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer f.Close()

	mrs, phis := []float64{}, []float64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") { continue }
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fmt.Errorf("lf '%s': bad row '%s'", filename, line)
		}
		mr, err1 := strconv.ParseFloat(fields[0], 64)
		phi, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("lf '%s': bad row '%s'", filename, line)
		}
		mrs = append(mrs, mr)
		phis = append(phis, phi)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read '%s': %v", filename, err)
	}
	if len(mrs) < 2 {
		return fmt.Errorf("lf '%s': need at least two rows", filename)
	}

	t.lfMr0 = mrs[0]
	t.lfDMr = mrs[1] - mrs[0]
	t.lf = phis
	return nil
}

type tmplRow struct {
	mr, feh float64
	mags    []float64
}

type axis struct {
	min, step float64
	n         int
}

func axisOf(rows []tmplRow, get func(tmplRow) float64) axis {
	seen := map[float64]bool{}
	for _, r := range rows {
		seen[get(r)] = true
	}
	vals := make([]float64, 0, len(seen))
	for v := range seen {
		vals = append(vals, v)
	}
	sort.Float64s(vals)

	a := axis{min: vals[0], n: len(vals), step: 1.0}
	if len(vals) > 1 {
		a.step = (vals[len(vals)-1] - vals[0]) / float64(len(vals)-1)
	}
	return a
}
