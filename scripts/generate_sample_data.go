package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/ml"
)

// The header mixes canonical names, synonyms and an unrelated column on purpose.
var header = []string{
	"Patient_ID", "hour", "heart_rate", "O2Sat", "Temperature", "SBP", "MAP", "DBP",
	"respiratory_rate", "BUN", "Creatinine", "pH", "notes",
}

func main() {
	var (
		outputPath   = flag.String("output", "data/sample_vitals.csv", "CSV file to write")
		rows         = flag.Int("rows", 1000, "Number of rows to generate")
		septicRate   = flag.Float64("septic-rate", 0.1, "Share of rows with septic vitals")
		missingRate  = flag.Float64("missing-rate", 0.15, "Share of cells left empty")
		malformed    = flag.Int("malformed", 3, "Number of rows with a non-numeric heart rate")
		seed         = flag.Uint64("seed", 42, "Random seed")
		artifactsDir = flag.String("artifacts", "", "Also write a sample model artifact set to this directory")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Generating sample vitals...\n")
	fmt.Printf("  Rows: %d\n", *rows)
	fmt.Printf("  Septic rate: %.2f\n", *septicRate)
	fmt.Printf("  Output: %s\n", *outputPath)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	if err := writeVitals(*outputPath, rng, *rows, *septicRate, *missingRate, *malformed); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate data")
	}

	if *artifactsDir != "" {
		if err := ml.WriteSampleArtifacts(*artifactsDir); err != nil {
			log.Fatal().Err(err).Msg("Failed to write sample artifacts")
		}
		fmt.Printf("Wrote sample model artifacts to %s\n", *artifactsDir)
	}

	fmt.Printf("Generated %d rows\n", *rows)
}

func writeVitals(path string, rng *rand.Rand, rows int, septicRate, missingRate float64, malformed int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}

	badRows := make(map[int]bool, malformed)
	for len(badRows) < malformed && len(badRows) < rows {
		badRows[rng.IntN(rows)] = true
	}

	for i := 0; i < rows; i++ {
		septic := rng.Float64() < septicRate
		v := sampleVitals(rng, septic)

		cell := func(x float64, prec int) string {
			if rng.Float64() < missingRate {
				return ""
			}
			return strconv.FormatFloat(x, 'f', prec, 64)
		}

		hr := cell(v.hr, 0)
		if badRows[i] {
			hr = "tachy"
		}
		note := "stable"
		if septic {
			note = "review"
		}

		record := []string{
			fmt.Sprintf("P%05d", i/24),
			strconv.Itoa(i % 24),
			hr,
			cell(v.o2, 0),
			cell(v.temp, 1),
			cell(v.sbp, 0),
			cell(v.mapp, 0),
			cell(v.dbp, 0),
			cell(v.resp, 0),
			cell(v.bun, 0),
			cell(v.creat, 2),
			cell(v.ph, 2),
			note,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

type vitals struct {
	hr, o2, temp, sbp, mapp, dbp, resp, bun, creat, ph float64
}

func sampleVitals(rng *rand.Rand, septic bool) vitals {
	n := func(mean, sd float64) float64 { return mean + rng.NormFloat64()*sd }
	if septic {
		sbp := n(95, 12)
		dbp := n(55, 8)
		return vitals{
			hr: n(118, 12), o2: n(92, 3), temp: n(38.8, 0.6), sbp: sbp, dbp: dbp,
			mapp: (sbp + 2*dbp) / 3, resp: n(26, 4), bun: n(35, 10), creat: n(1.9, 0.5), ph: n(7.31, 0.05),
		}
	}
	sbp := n(122, 12)
	dbp := n(76, 8)
	return vitals{
		hr: n(78, 10), o2: n(97, 1.5), temp: n(36.9, 0.4), sbp: sbp, dbp: dbp,
		mapp: (sbp + 2*dbp) / 3, resp: n(16, 2.5), bun: n(15, 5), creat: n(0.9, 0.2), ph: n(7.40, 0.03),
	}
}
