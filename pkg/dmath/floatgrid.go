package dmath

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a dense grid of float64s, with some operations. It is
// the raster type used for per-star probability surfaces and for
// convolution kernels: x indexes the reddening axis, y the distance
// modulus axis.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Add(x, y int, v float64) { fg.values[fg.stride*y + x] += v }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int                 { return len(fg.values) / fg.stride }

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

func (fg *FloatGrid)Zero() {
	for i:=0; i<len(fg.values); i++ {
		fg.values[i] = 0.0
	}
}

func (fg *FloatGrid)Sum() float64 { return floats.Sum(fg.values) }

func (fg *FloatGrid)Max() float64 {
	if len(fg.values) == 0 { return 0.0 }
	return floats.Max(fg.values)
}

func (fg *FloatGrid)Scale(k float64) { floats.Scale(k, fg.values) }

// EqualWithin reports whether two grids have the same shape and all
// values agree to within tol.
func (g1 *FloatGrid)EqualWithin(g2 *FloatGrid, tol float64) bool {
	if g1.stride != g2.stride || len(g1.values) != len(g2.values) { return false }
	return floats.EqualApprox(g1.values, g2.values, tol)
}

// Values32 flattens the grid to float32, row-major (y outer, x inner).
// Used when serializing surfaces into a contiguous output block.
func (fg *FloatGrid)Values32() []float32 {
	out := make([]float32, len(fg.values))
	for i, v := range fg.values {
		out[i] = float32(v)
	}
	return out
}

// SubGrid copies out the window [x0,x0+w) x [y0,y0+h).
func (g1 *FloatGrid)SubGrid(x0, y0, w, h int) FloatGrid {
	g2 := NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		copy(g2.values[y*w:(y+1)*w], g1.values[(y0+y)*g1.stride+x0 : (y0+y)*g1.stride+x0+w])
	}
	return g2
}

// Correlate applies plain 2-D correlation of the kernel against g1,
// returning a grid of the same shape as g1. The kernel must have odd
// dimensions; values beyond the grid edge are treated as zero, which
// is fine for surfaces whose mass sits away from the borders.
func (g1 *FloatGrid)Correlate(kernel *FloatGrid) FloatGrid {
	g2 := g1.NewFromThis()

	kw, kh := kernel.Dx(), kernel.Dy()
	hw, hh := kw/2, kh/2
	width, height := g1.Dx(), g1.Dy()

	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			t := 0.0
			for ky:=0; ky<kh; ky++ {
				yy := y + ky - hh
				if yy < 0 || yy >= height { continue }
				for kx:=0; kx<kw; kx++ {
					xx := x + kx - hw
					if xx < 0 || xx >= width { continue }
					t += kernel.Get(kx, ky) * g1.Get(xx, yy)
				}
			}
			g2.Set(x, y, t)
		}
	}

	return g2
}

// BoxDownsample area-averages the grid down by an integer factor in
// both axes. The grid dimensions must be exact multiples of the
// factor. This is what anti-aliases the oversampled kernel evaluation.
func (g1 *FloatGrid)BoxDownsample(factor int) FloatGrid {
	width := g1.Dx() / factor
	height := g1.Dy() / factor
	g2 := NewFloatGrid(width, height)

	norm := 1.0 / float64(factor*factor)
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			p := 0.0
			for j:=0; j<factor; j++ {
				for i:=0; i<factor; i++ {
					p += g1.Get(factor*x+i, factor*y+j)
				}
			}
			g2.Set(x, y, p*norm)
		}
	}

	return g2
}

// BlurXVariable applies a 1-D Gaussian blur along the x axis whose
// width varies with x position: sigmaPix[x] is the blur stddev, in
// pixels, used for the column at x. A zero sigma copies the column
// through unchanged. The kernel is renormalized over the in-bounds
// support, so blurring conserves each row's mass.
func (g1 *FloatGrid)BlurXVariable(sigmaPix []float64) FloatGrid {
	g2 := g1.NewFromThis()
	width, height := g1.Dx(), g1.Dy()

	for x:=0; x<width; x++ {
		sigma := 0.0
		if x < len(sigmaPix) { sigma = sigmaPix[x] }

		if sigma <= 0.0 {
			for y:=0; y<height; y++ {
				g2.Add(x, y, g1.Get(x, y))
			}
			continue
		}

		// Spread this column's values into g2, rather than gathering,
		// so each source column is smeared by its own sigma.
		halfwidth := int(math.Ceil(4.0 * sigma))
		norm := 0.0
		for dx:=-halfwidth; dx<=halfwidth; dx++ {
			xx := x + dx
			if xx < 0 || xx >= width { continue }
			norm += math.Exp(-0.5 * float64(dx*dx) / (sigma*sigma))
		}

		for dx:=-halfwidth; dx<=halfwidth; dx++ {
			xx := x + dx
			if xx < 0 || xx >= width { continue }
			w := math.Exp(-0.5 * float64(dx*dx) / (sigma*sigma)) / norm
			for y:=0; y<height; y++ {
				g2.Add(xx, y, w * g1.Get(x, y))
			}
		}
	}

	return g2
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0 * min

	for i:=0 ; i<len(fg.values) ; i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%g,%g}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImg saves a simple grayscale PNG, based on the range of values in
// the grid, gamma scaled so faint structure is visible.
func (fg *FloatGrid)ToImg(title, filename string) {
	min, max := fg.values[0], fg.values[0]
	for i:=0; i<len(fg.values); i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	if max <= min { max = min + 1.0 }

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			gray := math.Sqrt((fg.Get(x,y) - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,1,1)
	dc.DrawString(title, 10, 16)
	dc.SavePNG(filename)
}
