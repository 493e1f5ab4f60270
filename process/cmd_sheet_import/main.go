package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"prodtally/models"
	"prodtally/pkg/ocr"
	"prodtally/pkg/store"
)

// Imports production rows from a CSV export of a digital tally spreadsheet.
// Expected columns: data (YYYY-MM-DD), turno, coluna (machine number), peso.
// A header row is detected and skipped when the first field is not a date.
func main() {
	file := flag.String("file", "", "CSV file to import")
	labID := flag.Uint("lab-id", 0, "Lab ID to assign the records to")
	dryRun := flag.Bool("dry-run", false, "Parse and print, skip DB writes")
	flag.Parse()
	if *file == "" || *labID == 0 {
		log.Fatal("-file and -lab-id are required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	var recs []models.RegistroProducao
	line := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read csv line %d: %v", line+1, err)
		}
		line++
		date := strings.TrimSpace(row[0])
		if line == 1 && !ocr.ValidISODate(date) {
			continue // header
		}
		if !ocr.ValidISODate(date) {
			log.Fatalf("line %d: invalid date %q (want YYYY-MM-DD)", line, date)
		}
		turno := strings.TrimSpace(row[1])
		if turno == "" {
			log.Fatalf("line %d: empty turno", line)
		}
		col, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || col < 1 {
			log.Fatalf("line %d: invalid coluna %q", line, row[2])
		}
		peso, ok := ocr.ParseQuantity(strings.TrimSpace(row[3]))
		if !ok {
			log.Fatalf("line %d: invalid peso %q", line, row[3])
		}
		slug := strings.Join(strings.Fields(turno), "")
		recs = append(recs, models.RegistroProducao{
			LabID:              *labID,
			IdentificadorUnico: fmt.Sprintf("%s-%s-COL%d", date, slug, col),
			DataProducao:       date,
			Turno:              turno,
			Produto:            fmt.Sprintf("Line/Machine %d", col),
			Peso:               peso,
			Metadata:           datatypes.JSON([]byte(fmt.Sprintf(`{"source":%q}`, models.SourceSpreadsheet))),
		})
	}

	log.Printf("Parsed %d records from %s", len(recs), *file)
	if *dryRun {
		for _, rec := range recs {
			fmt.Printf("%s peso=%g\n", rec.IdentificadorUnico, rec.Peso)
		}
		return
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := store.New(db).UpsertBatch(recs); err != nil {
		log.Fatalf("upsert: %v", err)
	}
	log.Printf("Imported %d records for lab %d", len(recs), *labID)
}
