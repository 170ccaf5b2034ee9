package dstack

import(
	"fmt"

	"github.com/abworrall/dustgrid/pkg/dmath"
)

// An ImgStack owns one probability surface per star for a single sky
// pixel, all sharing one grid geometry. The surface at index i belongs
// to the star at index i of the pixel's star list; every operation
// here preserves that alignment, and Cull documents how callers keep
// their parallel per-star arrays aligned too.
type ImgStack struct {
	Rect Rect
	Imgs []*dmath.FloatGrid
}

func NewImgStack(rect Rect, nStars int) *ImgStack {
	s := &ImgStack{Rect: rect, Imgs: make([]*dmath.FloatGrid, nStars)}
	for i:=0; i<nStars; i++ {
		g := dmath.NewFloatGrid(rect.NBins[0], rect.NBins[1])
		s.Imgs[i] = &g
	}
	return s
}

func (s *ImgStack)NStars() int { return len(s.Imgs) }

func (s ImgStack)String() string {
	return fmt.Sprintf("imgstack[%d surfaces, %s]", len(s.Imgs), s.Rect)
}

// SetRect re-fixes the grid geometry, reallocating every surface to
// the new shape (zeroed). Must precede any fill.
func (s *ImgStack)SetRect(rect Rect) {
	s.Rect = rect
	for i := range s.Imgs {
		g := dmath.NewFloatGrid(rect.NBins[0], rect.NBins[1])
		s.Imgs[i] = &g
	}
}

func (s *ImgStack)InitToZero(i int) { s.Imgs[i].Zero() }

// Crop trims every surface to the sub-rectangle [eMin,eMax] x
// [muMin,muMax], snapping to whole bins, and updates the shared Rect
// to match. Bins outside the window are discarded. Used to cut away
// unphysical parameter ranges after evaluation.
func (s *ImgStack)Crop(eMin, eMax, muMin, muMax float64) {
	i0 := binFloor(eMin, s.Rect.Min[0], s.Rect.Dx[0], s.Rect.NBins[0])
	i1 := binCeil(eMax, s.Rect.Min[0], s.Rect.Dx[0], s.Rect.NBins[0])
	j0 := binFloor(muMin, s.Rect.Min[1], s.Rect.Dx[1], s.Rect.NBins[1])
	j1 := binCeil(muMax, s.Rect.Min[1], s.Rect.Dx[1], s.Rect.NBins[1])

	for i := range s.Imgs {
		g := s.Imgs[i].SubGrid(i0, j0, i1-i0, j1-j0)
		s.Imgs[i] = &g
	}

	s.Rect = NewRect(
		[2]float64{s.Rect.Min[0] + float64(i0)*s.Rect.Dx[0], s.Rect.Min[0] + float64(i1)*s.Rect.Dx[0]},
		[2]float64{s.Rect.Min[1] + float64(j0)*s.Rect.Dx[1], s.Rect.Min[1] + float64(j1)*s.Rect.Dx[1]},
		[2]int{i1 - i0, j1 - j0},
	)
}

func binFloor(v, min, dx float64, n int) int {
	i := int((v - min) / dx)
	if i < 0 { i = 0 }
	if i > n { i = n }
	return i
}

func binCeil(v, min, dx float64, n int) int {
	i := binFloor(v, min, dx, n)
	// don't round up past a bin edge the value already sits on
	if min + float64(i)*dx < v { i++ }
	if i > n { i = n }
	return i
}

// Cull drops the surfaces whose keep entry is false, preserving the
// relative order of the survivors. Callers holding per-star arrays
// parallel to the stack (chi2, records) must filter them with the
// same mask -- see CullFloats.
func (s *ImgStack)Cull(keep []bool) {
	kept := s.Imgs[:0]
	for i, g := range s.Imgs {
		if keep[i] {
			kept = append(kept, g)
		}
	}
	for i:=len(kept); i<len(s.Imgs); i++ {
		s.Imgs[i] = nil
	}
	s.Imgs = kept
}

// CullFloats applies a keep-mask to a per-star scalar array, so it
// stays index-aligned with a culled stack.
func CullFloats(xs []float64, keep []bool) []float64 {
	kept := xs[:0]
	for i, x := range xs {
		if keep[i] {
			kept = append(kept, x)
		}
	}
	return kept
}

// Smooth blurs every surface along the reddening axis with a
// position-dependent 1-D Gaussian: sigmaPix[i] is the blur width, in
// bins, applied at E bin i. Reddening uncertainty grows with reddening,
// so the caller typically hands in a ramp. All-zero sigmas leave the
// surfaces numerically unchanged.
func (s *ImgStack)Smooth(sigmaPix []float64) {
	for i := range s.Imgs {
		g := s.Imgs[i].BlurXVariable(sigmaPix)
		s.Imgs[i] = &g
	}
}

// Stacked serializes all retained surfaces into one contiguous float32
// block (star-major, then row-major per surface), sized for a single
// batched write.
func (s *ImgStack)Stacked() []float32 {
	perImg := s.Rect.NBins[0] * s.Rect.NBins[1]
	out := make([]float32, 0, perImg*len(s.Imgs))
	for _, g := range s.Imgs {
		out = append(out, g.Values32()...)
	}
	return out
}
