package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"prodtally/pkg/ocr"
)

func main() {
	f := flag.String("file", "", "image file to OCR")
	raw := flag.Bool("raw", false, "skip preprocessing, OCR the file as-is")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	path := *f
	if !*raw {
		prep := path + ".prep.png"
		if _, _, err := ocr.PreprocessFile(path, prep); err != nil {
			log.Fatalf("preprocess: %v", err)
		}
		defer os.Remove(prep)
		path = prep
	}
	res, err := ocr.NewTesseractEngine().Recognize(path)
	if err != nil {
		log.Fatalf("ocr error: %v", err)
	}
	fmt.Printf("--- full text ---\n%s\n--- %d words ---\n", res.FullText, len(res.Words))
	for _, w := range res.Words {
		fmt.Printf("%q (%d,%d)-(%d,%d) conf=%.2f\n", w.Text, w.X0, w.Y0, w.X1, w.Y1, w.Confidence)
	}
	blocks := ocr.ParseBlocks(res, time.Now())
	out, _ := json.MarshalIndent(blocks, "", "  ")
	fmt.Printf("--- %d blocks ---\n%s\n", len(blocks), out)
}
