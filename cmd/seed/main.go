// Command seed fills a SQLite feature table with synthetic hourly
// observations, and optionally writes them as a JSON fixture.
//
// Usage:
//
//	go run ./cmd/seed -dsn airquality.db -days 30 -seed 42 \
//	  -json-out data/mock/observations.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/air-quality-model/internal/adapter/sqlite"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/synthetic"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("dsn", "airquality.db", "SQLite database to seed")
	days := flag.Int("days", 30, "days of hourly observations ending now")
	seed := flag.Uint64("seed", 42, "random seed")
	jsonOut := flag.String("json-out", "", "optional path for a JSON fixture of the generated rows")
	flag.Parse()

	if *days <= 0 {
		flag.Usage()
		return fmt.Errorf("-days must be positive")
	}

	obs := synthetic.Generate(synthetic.Options{End: domain.Now(), Days: *days, Seed: *seed})
	log.Printf("generated %d observations at %d stations", len(obs), len(synthetic.DefaultStations))

	ctx := context.Background()
	store, err := sqlite.Open(ctx, *dsn, sharedobs.NewLogger("info", "text"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.InsertObservations(ctx, obs); err != nil {
		return fmt.Errorf("insert observations: %w", err)
	}
	log.Printf("seeded %s", *dsn)

	if *jsonOut != "" {
		if err := writeJSON(*jsonOut, obs); err != nil {
			return fmt.Errorf("writing fixture: %w", err)
		}
		log.Printf("wrote fixture: %s", *jsonOut)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
