package ocr

import (
	"fmt"
	"os"

	"github.com/otiai10/gosseract/v2"
)

// sheetWhitelist restricts recognition to what actually appears on a tally
// sheet: digits, letters, the punctuation used in dates/ratios, and space.
// Keeps Tesseract from inventing stray symbols on pencil smudges.
const sheetWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz/.,: "

// Engine abstracts the OCR collaborator so parsing can be tested without
// Tesseract installed.
type Engine interface {
	Recognize(imagePath string) (*Result, error)
}

// TesseractEngine runs gosseract against a preprocessed image. A fresh client
// is created per call; gosseract clients are not safe for reuse across runs
// with different images.
type TesseractEngine struct {
	Language string // defaults to "por"
}

// NewTesseractEngine honors OCR_LANG for deployments with a different
// traineddata set.
func NewTesseractEngine() *TesseractEngine {
	lang := os.Getenv("OCR_LANG")
	if lang == "" {
		lang = "por"
	}
	return &TesseractEngine{Language: lang}
}

func (e *TesseractEngine) Recognize(imagePath string) (*Result, error) {
	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage(e.Language)
	_ = client.SetWhitelist(sheetWhitelist)
	_ = client.SetPageSegMode(gosseract.PSM_AUTO)
	if err := client.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	words := make([]RecognizedWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, RecognizedWord{
			Text:       b.Word,
			X0:         b.Box.Min.X,
			Y0:         b.Box.Min.Y,
			X1:         b.Box.Max.X,
			Y1:         b.Box.Max.Y,
			Confidence: b.Confidence,
		})
	}
	return &Result{FullText: text, Words: words}, nil
}
