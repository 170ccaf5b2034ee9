// Package pixstore persists pixels, their photometry, and the
// evaluated probability surfaces in a sqlite database. The surfaces
// for one pixel are one named dataset: a single row keyed by pixel
// name carrying the grid geometry and all retained surfaces as one
// float32 blob, written in one transaction.
package pixstore

import(
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/abworrall/dustgrid/pkg/dstack"
	"github.com/abworrall/dustgrid/pkg/photom"
)

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pixels (
	name TEXT PRIMARY KEY,
	cell_id INTEGER NOT NULL,
	level INTEGER NOT NULL,
	l REAL NOT NULL,
	b REAL NOT NULL,
	ebv REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS stars (
	pixel TEXT NOT NULL,
	idx INTEGER NOT NULL,
	obj_id INTEGER NOT NULL,
	l REAL NOT NULL,
	b REAL NOT NULL,
	pi REAL NOT NULL,
	pierr REAL NOT NULL,
	ebv REAL NOT NULL,
	mags BLOB NOT NULL,
	errs BLOB NOT NULL,
	maglimits BLOB NOT NULL,
	PRIMARY KEY (pixel, idx)
);
CREATE TABLE IF NOT EXISTS surfaces (
	pixel TEXT PRIMARY KEY,
	n_stars INTEGER NOT NULL,
	e_min REAL NOT NULL, e_max REAL NOT NULL, n_e INTEGER NOT NULL,
	mu_min REAL NOT NULL, mu_max REAL NOT NULL, n_mu INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS chi2 (
	pixel TEXT NOT NULL,
	idx INTEGER NOT NULL,
	chi2pp REAL NOT NULL,
	PRIMARY KEY (pixel, idx)
);
`

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db '%s': %v", path, err)
	}

	// WAL so a reader can poke at results mid-run
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma '%s': %v", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("schema '%s': %v", path, err)
	}

	return &Store{db: db}, nil
}

func (s *Store)Close() error { return s.db.Close() }

// HasSurfaces reports whether the pixel's output dataset already
// exists, which makes a re-run a no-op for that pixel.
func (s *Store)HasSurfaces(pixName string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM surfaces WHERE pixel = ?", pixName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("surfaces lookup '%s': %v", pixName, err)
	}
	return n > 0, nil
}

// SaveSurfaces writes the pixel's whole output dataset -- grid
// geometry, the stacked surfaces, and the per-star chi2 -- in one
// transaction. This is the single batched write at the end of a
// pixel's processing; nothing is persisted before it.
func (s *Store)SaveSurfaces(pix photom.Pixel, stack *dstack.ImgStack, chi2pp []float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO pixels (name, cell_id, level, l, b, ebv) VALUES (?,?,?,?,?,?)`,
		pix.Name, int64(pix.CellID), pix.Level, pix.L, pix.B, pix.EBV); err != nil {
		return fmt.Errorf("save pixel '%s': %v", pix.Name, err)
	}

	r := stack.Rect
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO surfaces (pixel, n_stars, e_min, e_max, n_e, mu_min, mu_max, n_mu, data)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		pix.Name, stack.NStars(),
		r.Min[0], r.Max[0], r.NBins[0],
		r.Min[1], r.Max[1], r.NBins[1],
		floats32ToBlob(stack.Stacked())); err != nil {
		return fmt.Errorf("save surfaces '%s': %v", pix.Name, err)
	}

	for i, x := range chi2pp {
		// sqlite has no +Inf literal; store the degenerate-star
		// sentinel as a NULL-ish huge value instead
		if math.IsInf(x, 1) { x = math.MaxFloat64 }
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO chi2 (pixel, idx, chi2pp) VALUES (?,?,?)`,
			pix.Name, i, x); err != nil {
			return fmt.Errorf("save chi2 '%s' #%d: %v", pix.Name, i, err)
		}
	}

	return tx.Commit()
}

// LoadSurfaces reads a pixel's dataset back: the grid geometry and
// one FloatGrid-shaped float32 slice per star.
func (s *Store)LoadSurfaces(pixName string) (dstack.Rect, [][]float32, error) {
	var nStars, nE, nMu int
	var eMin, eMax, muMin, muMax float64
	var blob []byte

	err := s.db.QueryRow(
		`SELECT n_stars, e_min, e_max, n_e, mu_min, mu_max, n_mu, data FROM surfaces WHERE pixel = ?`,
		pixName).Scan(&nStars, &eMin, &eMax, &nE, &muMin, &muMax, &nMu, &blob)
	if err != nil {
		return dstack.Rect{}, nil, fmt.Errorf("load surfaces '%s': %v", pixName, err)
	}

	rect := dstack.NewRect([2]float64{eMin, muMin}, [2]float64{eMax, muMax}, [2]int{nE, nMu})
	all := blobToFloats32(blob)

	perImg := nE * nMu
	if len(all) != perImg*nStars {
		return rect, nil, fmt.Errorf("surfaces '%s': blob holds %d values, want %d", pixName, len(all), perImg*nStars)
	}

	surfs := make([][]float32, nStars)
	for i:=0; i<nStars; i++ {
		surfs[i] = all[i*perImg : (i+1)*perImg]
	}
	return rect, surfs, nil
}

// SaveStars stores a pixel's input photometry.
func (s *Store)SaveStars(pix photom.Pixel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO pixels (name, cell_id, level, l, b, ebv) VALUES (?,?,?,?,?,?)`,
		pix.Name, int64(pix.CellID), pix.Level, pix.L, pix.B, pix.EBV); err != nil {
		return fmt.Errorf("save pixel '%s': %v", pix.Name, err)
	}

	for i, st := range pix.Stars {
		pierr := st.PiErr
		if math.IsInf(pierr, 1) { pierr = photom.MissingErrThreshold * 2 }
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO stars (pixel, idx, obj_id, l, b, pi, pierr, ebv, mags, errs, maglimits)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			pix.Name, i, int64(st.ObjID), st.L, st.B, st.Pi, pierr, st.EBV,
			floats64ToBlob(st.Mag[:]), floats64ToBlob(st.Err[:]), floats64ToBlob(st.MagLimit[:])); err != nil {
			return fmt.Errorf("save star '%s' #%d: %v", pix.Name, i, err)
		}
	}

	return tx.Commit()
}

// LoadPixelNames lists the stored pixels, in name order.
func (s *Store)LoadPixelNames() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM pixels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("pixel names: %v", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("pixel names scan: %v", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LoadPixel reads one pixel and its stars, finalizing each record
// with the given error floor.
func (s *Store)LoadPixel(name string, errFloor float64) (photom.Pixel, error) {
	pix := photom.Pixel{}

	var cellID int64
	err := s.db.QueryRow(
		`SELECT name, cell_id, level, l, b, ebv FROM pixels WHERE name = ?`, name).
		Scan(&pix.Name, &cellID, &pix.Level, &pix.L, &pix.B, &pix.EBV)
	if err != nil {
		return pix, fmt.Errorf("load pixel '%s': %v", name, err)
	}
	pix.CellID = uint64(cellID)

	rows, err := s.db.Query(
		`SELECT obj_id, l, b, pi, pierr, ebv, mags, errs, maglimits FROM stars WHERE pixel = ? ORDER BY idx`,
		name)
	if err != nil {
		return pix, fmt.Errorf("load stars '%s': %v", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var objID int64
		var mags, errs, limits []byte
		rec := photom.Record{}
		if err := rows.Scan(&objID, &rec.L, &rec.B, &rec.Pi, &rec.PiErr, &rec.EBV,
			&mags, &errs, &limits); err != nil {
			return pix, fmt.Errorf("load stars '%s': %v", name, err)
		}
		rec.ObjID = uint64(objID)
		if rec.PiErr > photom.MissingErrThreshold { rec.PiErr = math.Inf(1) }
		copy(rec.Mag[:], blobToFloats64(mags))
		copy(rec.Err[:], blobToFloats64(errs))
		copy(rec.MagLimit[:], blobToFloats64(limits))
		rec.Finalize(errFloor)

		pix.Stars = append(pix.Stars, rec)
	}

	return pix, rows.Err()
}

func floats32ToBlob(xs []float32) []byte {
	b := make([]byte, 4*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func blobToFloats32(b []byte) []float32 {
	xs := make([]float32, len(b)/4)
	for i := range xs {
		xs[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return xs
}

func floats64ToBlob(xs []float64) []byte {
	b := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

func blobToFloats64(b []byte) []float64 {
	xs := make([]float64, len(b)/8)
	for i := range xs {
		xs[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return xs
}
