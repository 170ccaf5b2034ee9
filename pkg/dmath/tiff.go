package dmath

import(
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"
)

// ToTIFF writes the grid as a Gray16 TIFF, linearly rescaled to the
// full range. PNG dumps (ToImg) are for eyeballing; this keeps more of
// the dynamic range for poking at surfaces in other tools.
func (fg *FloatGrid)ToTIFF(filename string) error {
	min, max := fg.values[0], fg.values[0]
	for i:=0; i<len(fg.values); i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	if max <= min { max = min + 1.0 }

	img := image.NewGray16(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			v := (fg.Get(x,y) - min) / (max - min)
			img.SetGray16(x, y, color.Gray16{uint16(v * 65535.0)})
		}
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate})
}
