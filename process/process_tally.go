package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"prodtally/models"
	"prodtally/pkg/ocr"
	"prodtally/pkg/session"
	"prodtally/pkg/store"
)

// Global DB handle for helper funcs
var db *gorm.DB

// global flags (parsed in main)
var (
	verbose bool
	dryRun  bool
)

// MIME mapping to avoid opening files repeatedly
var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// preload caches so the worker pool doesn't re-query per file
type preloadState struct {
	uploadsByFile map[string]*models.SheetUpload
	mu            sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{uploadsByFile: make(map[string]*models.SheetUpload, 1024)}
}

func (ps *preloadState) getUpload(name string) (*models.SheetUpload, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	u, ok := ps.uploadsByFile[name]
	return u, ok
}
func (ps *preloadState) putUpload(u *models.SheetUpload) {
	ps.mu.Lock()
	ps.uploadsByFile[u.FileName] = u
	ps.mu.Unlock()
}

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

// Main: scans a directory of tally sheet photos, creates SheetUpload rows, runs the
// digitization pipeline and commits the parsed records, optional watch mode.
func main() {
	dirFlag := flag.String("dir", "public/sheets", "directory to scan for tally sheet photos")
	labID := flag.Uint("lab-id", 0, "Lab ID to assign uploads to (if omitted attempts the oldest active lab)")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	flag.BoolVar(&dryRun, "dry-run", false, "Run OCR and parsing but skip all DB writes; print what would be committed")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-file logging")
	flag.Parse()

	engine := ocr.NewTesseractEngine()

	if dryRun {
		log.Printf("Dry-run: scanning %s (no DB interaction)", *dirFlag)
		files := listImageFiles(*dirFlag)
		log.Printf("Found %d candidate files", len(files))
		for _, f := range files {
			blocks, err := digitizeFile(engine, filepath.Join(*dirFlag, f))
			if err != nil {
				log.Printf("FAIL %s: %v", f, err)
				continue
			}
			s := session.New(*labID, models.SourceOCR, blocks)
			recs, err := s.Flatten()
			if err != nil {
				log.Printf("FAIL %s: %v", f, err)
				continue
			}
			log.Printf("OK %s: blocks=%d records=%d", f, len(blocks), len(recs))
			for _, r := range recs {
				logV("  %s turno=%s produto=%q peso=%g", r.IdentificadorUnico, r.Turno, r.Produto, r.Peso)
			}
		}
		return
	}

	db = mustInitDBFromEnv()
	lab := resolveLab(*labID)
	recordStore := store.New(db)
	ps := preloadAll(lab)
	log.Printf("Preloaded: uploads=%d", len(ps.uploadsByFile))

	files := listImageFiles(*dirFlag)
	log.Printf("Scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	runWorkerPool(*dirFlag, lab, recordStore, engine, ps, files, effectiveWorkers(*workers))

	if *watch {
		if err := watchDirectory(*dirFlag, lab, recordStore, engine, ps, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// preloadAll fetches existing uploads to minimize per-file queries.
func preloadAll(lab models.Lab) *preloadState {
	ps := newPreloadState()
	var ups []models.SheetUpload
	if err := db.Where("lab_id = ?", lab.ID).Find(&ups).Error; err == nil {
		for i := range ups {
			u := ups[i]
			ps.uploadsByFile[u.FileName] = &u
		}
	}
	return ps
}

// resolveLab finds the lab either by explicit id or falls back to the oldest active one.
func resolveLab(id uint) models.Lab {
	var l models.Lab
	if id != 0 {
		if err := db.First(&l, id).Error; err != nil {
			log.Fatalf("failed to find lab id %d: %v", id, err)
		}
		return l
	}
	if err := db.Where("active = ?", true).Order("id asc").First(&l).Error; err != nil {
		log.Fatalf("no --lab-id provided and no active lab found: %v", err)
	}
	return l
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func watchDirectory(dir string, lab models.Lab, rs *store.Store, engine ocr.Engine, ps *preloadState, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		// simple debounce map of pending files
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !isSupportedExt(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	// Use worker pool for watch events too
	go runWorkerPool(dir, lab, rs, engine, ps, nil, workers, fileCh)
	// block forever (Ctrl+C to exit)
	select {}
}

func isSupportedExt(name string) bool {
	// ignore preprocessed temp files to avoid recursive processing
	if strings.Contains(name, ".prep.") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// worker pool orchestrator
func runWorkerPool(dir string, lab models.Lab, rs *store.Store, engine ocr.Engine, ps *preloadState, initial []string, workers int, extraCh ...<-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				processSingleFile(dir, name, lab, rs, engine, ps)
			}
		}()
	}
	// feed initial
	go func() {
		for _, f := range initial {
			fileCh <- f
		}
		// also relay from extra channels if provided
		for _, ch := range extraCh {
			go func(c <-chan string) {
				for n := range c {
					fileCh <- n
				}
			}(ch)
		}
		// if no extraCh (scan only) close when done
		if len(extraCh) == 0 {
			close(fileCh)
		}
	}()
	if len(extraCh) == 0 {
		wg.Wait()
	}
}

// digitizeFile runs preprocess + OCR + block parsing for one photo.
func digitizeFile(engine ocr.Engine, path string) ([]*ocr.Block, error) {
	prep := path + ".prep.png"
	if _, _, err := ocr.PreprocessFile(path, prep); err != nil {
		return nil, err
	}
	defer os.Remove(prep)
	res, err := engine.Recognize(prep)
	if err != nil {
		return nil, err
	}
	blocks := ocr.ParseBlocks(res, time.Now())
	if len(blocks) == 0 {
		return nil, ocr.ErrNoSheetData
	}
	return blocks, nil
}

// processSingleFile executes idempotent logic: ensure the SheetUpload row exists,
// digitize the photo and upsert the parsed records. Already-processed files (upload
// exists and is not failed) are skipped so re-scans and watch re-deliveries are cheap.
func processSingleFile(dir, name string, lab models.Lab, rs *store.Store, engine ocr.Engine, ps *preloadState) {
	storePath := filepath.ToSlash(filepath.Join("public", filepath.Base(dir), name))
	filePath := filepath.Join(dir, name)

	up, upExists := ps.getUpload(name)
	if upExists && !up.Failed {
		logV("SKIP already processed %s", name)
		return
	}

	if !upExists {
		newUp := models.SheetUpload{LabID: lab.ID, FileName: name, StorePath: storePath}
		if ct := extMime[strings.ToLower(filepath.Ext(name))]; ct != "" {
			newUp.ContentType = ct
		}
		if err := db.Create(&newUp).Error; err != nil {
			log.Printf("ERROR create upload %s: %v", storePath, err)
			return
		}
		ps.putUpload(&newUp)
		up = &newUp
		log.Printf("NEW upload id=%d file=%s", newUp.ID, name)
	}

	markFailed := func(reason string) {
		up.Failed = true
		if len(reason) > 250 {
			reason = reason[:250]
		}
		up.FailedReason = reason
		if err := db.Save(up).Error; err != nil {
			log.Printf("WARN save failed flag %s: %v", name, err)
		}
	}

	blocks, err := digitizeFile(engine, filePath)
	if err != nil {
		log.Printf("OCR fail %s: %v", name, err)
		markFailed(err.Error())
		return
	}

	s := session.New(lab.ID, models.SourceOCR, blocks)
	recs, err := s.Flatten()
	if err != nil {
		log.Printf("PARSE fail %s: %v", name, err)
		markFailed(err.Error())
		return
	}
	if err := rs.UpsertBatch(recs); err != nil {
		log.Printf("ERROR upsert %s: %v", name, err)
		markFailed("persist: " + err.Error())
		return
	}
	if up.Failed {
		up.Failed = false
		up.FailedReason = ""
		_ = db.Save(up).Error
	}
	log.Printf("DONE %s blocks=%d records=%d", name, len(blocks), len(recs))
}
