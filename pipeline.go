package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"prodtally/models"
	"prodtally/pkg/ocr"
	"prodtally/pkg/session"
)

// Tesseract is CPU and memory heavy, so recognition runs on exactly one
// worker. A photo submitted while another is being recognized waits in the
// channel and runs as soon as the engine is free; parsing and session editing
// are cheap and stay synchronous in the handlers.

type digitizeJob struct {
	imagePath string
	labID     uint
	reply     chan digitizeResult
}

type digitizeResult struct {
	sess *session.Session
	err  error
}

var (
	ocrEngine    ocr.Engine
	digitizeJobs chan digitizeJob
	sessions     *session.Registry
)

func startDigitizePipeline(engine ocr.Engine) {
	ocrEngine = engine
	digitizeJobs = make(chan digitizeJob, 16)
	sessions = session.NewRegistry()
	go func() {
		for job := range digitizeJobs {
			job.reply <- runDigitize(job)
		}
	}()
}

// submitDigitize queues a photo and blocks until its turn is done.
func submitDigitize(imagePath string, labID uint) (*session.Session, error) {
	reply := make(chan digitizeResult, 1)
	digitizeJobs <- digitizeJob{imagePath: imagePath, labID: labID, reply: reply}
	res := <-reply
	return res.sess, res.err
}

// runDigitize is the image -> session pipeline: preprocess, recognize, parse,
// reconcile. A recognition failure is fatal to this invocation only; nothing
// has been written anywhere yet.
func runDigitize(job digitizeJob) digitizeResult {
	tmpFile, err := os.CreateTemp("", "tally-pre-*.png")
	if err != nil {
		return digitizeResult{err: fmt.Errorf("temp file: %w", err)}
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmp)

	w, h, err := ocr.PreprocessFile(job.imagePath, tmp)
	if err != nil {
		return digitizeResult{err: fmt.Errorf("preprocess %s: %w", job.imagePath, err)}
	}
	res, err := ocrEngine.Recognize(tmp)
	if err != nil {
		return digitizeResult{err: fmt.Errorf("ocr %s: %w", job.imagePath, err)}
	}
	blocks := ocr.ParseBlocks(res, time.Now())
	if len(blocks) == 0 {
		return digitizeResult{err: ocr.ErrNoSheetData}
	}
	sess := session.New(job.labID, models.SourceOCR, blocks)
	sess.ImagePath = job.imagePath
	sess.ImageWidth = w
	sess.ImageHeight = h
	sessions.Put(sess)
	log.Printf("digitized %s: %d block(s), session %s", job.imagePath, len(blocks), sess.ID)
	return digitizeResult{sess: sess}
}
