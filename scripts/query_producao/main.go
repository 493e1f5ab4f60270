package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Registro struct {
	ID                 uint
	LabID              uint
	IdentificadorUnico string
	DataProducao       string
	Turno              string
	Produto            string
	Peso               float64
}

// TableName overrides GORM's default pluralization to match the RegistroProducao model's table.
func (Registro) TableName() string { return "registro_producaos" }

func main() {
	labID := flag.Uint("lab-id", 0, "lab id")
	date := flag.String("date", "", "production date (YYYY-MM-DD)")
	wait := flag.Int("wait", 15, "seconds to wait/poll")
	flag.Parse()
	if *labID == 0 || *date == "" {
		log.Fatal("--lab-id and --date are required")
	}
	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in env")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	deadline := time.Now().Add(time.Duration(*wait) * time.Second)
	for {
		var rs []Registro
		err := db.Where("lab_id = ? AND data_producao = ?", *labID, *date).
			Order("turno asc, identificador_unico asc").Find(&rs).Error
		if err == nil && len(rs) > 0 {
			fmt.Printf("FOUND %d records for %s\n", len(rs), *date)
			for _, r := range rs {
				fmt.Printf("  %s turno=%s produto=%q peso=%g\n", r.IdentificadorUnico, r.Turno, r.Produto, r.Peso)
			}
			return
		}
		if time.Now().After(deadline) {
			log.Fatalf("no records after %ds waiting", *wait)
		}
		time.Sleep(2 * time.Second)
	}
}
