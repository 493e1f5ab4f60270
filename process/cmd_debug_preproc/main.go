package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"prodtally/pkg/ocr"
)

func main() {
	f := flag.String("file", "", "tally sheet photo to preprocess")
	keep := flag.Bool("keep", false, "keep the preprocessed image next to the input")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	out := *f + ".prep.png"
	w, h, err := ocr.PreprocessFile(*f, out)
	if err != nil {
		log.Fatalf("preprocess: %v", err)
	}
	fmt.Printf("preprocessed %s -> %s (%dx%d)\n", *f, out, w, h)
	if !*keep {
		res, err := ocr.NewTesseractEngine().Recognize(out)
		_ = os.Remove(out)
		if err != nil {
			log.Fatalf("ocr err: %v", err)
		}
		fmt.Printf("words=%d\n%s\n", len(res.Words), res.FullText)
	}
}
