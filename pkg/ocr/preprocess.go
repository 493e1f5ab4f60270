package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// binarization threshold chosen so dark pencil marks and lighter printed
// digits both survive; no adaptive thresholding on purpose.
const binarizeThreshold = 128

// Preprocess normalizes an arbitrary-resolution sheet photo into the image
// handed to Tesseract: 2x upscale with smoothing, then a fixed-threshold
// luminance binarization. Pure transform; the source image is not modified.
func Preprocess(src image.Image) *image.NRGBA {
	b := src.Bounds()
	up := imaging.Resize(src, b.Dx()*2, b.Dy()*2, imaging.Lanczos)
	return binarize(up, binarizeThreshold)
}

// PreprocessFile opens a photo, preprocesses it and saves the result to
// dstPath (format chosen by extension). Returns the preprocessed dimensions
// for later box mapping.
func PreprocessFile(srcPath, dstPath string) (int, int, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, err
	}
	out := Preprocess(img)
	if err := imaging.Save(out, dstPath); err != nil {
		return 0, 0, err
	}
	return out.Bounds().Dx(), out.Bounds().Dy(), nil
}

// binarize performs a global threshold using Rec.709 luminance. Pixels at or
// above the threshold become white, everything else black.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := 0.2126*float64(r>>8) + 0.7152*float64(g>>8) + 0.0722*float64(bl>>8)
			var v uint8
			if lum >= float64(threshold) {
				v = 255
			}
			out.Set(x-b.Min.X, y-b.Min.Y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
