package ocr

// Box is a rectangle in some pixel space.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// MapBoxToDisplay maps a bounding box from source-image pixel space to the
// on-screen display size of that image. The source size must be the space the
// box was produced in; for boxes coming from recognition that is the
// preprocessed (2x upscaled) image, not the original photo. Pure function,
// independent of any rendering technology.
func MapBoxToDisplay(b Box, srcW, srcH, dispW, dispH int) Box {
	if srcW <= 0 || srcH <= 0 {
		return Box{}
	}
	sx := float64(dispW) / float64(srcW)
	sy := float64(dispH) / float64(srcH)
	return Box{
		X0: int(float64(b.X0) * sx),
		Y0: int(float64(b.Y0) * sy),
		X1: int(float64(b.X1) * sx),
		Y1: int(float64(b.Y1) * sy),
	}
}

// WordBox is the recognized word's rectangle as a Box.
func WordBox(w *RecognizedWord) Box {
	return Box{X0: w.X0, Y0: w.Y0, X1: w.X1, Y1: w.Y1}
}
