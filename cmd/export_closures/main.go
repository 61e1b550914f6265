// Command export_closures writes the closure journal to CSV.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"cryptoPositionWatch/internal/adapters/logger"
	"cryptoPositionWatch/internal/adapters/sqlite"
	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/utils"
)

var (
	dbPath = flag.String("db", envOr("JOURNAL_DB_PATH", "./data/closures.db"), "closure journal database")
	symbol = flag.String("symbol", "", "export only this symbol")
	limit  = flag.Int("limit", 0, "maximum number of closures, newest first (0 = all)")
	out    = flag.String("out", "-", "output file, - for stdout")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()
	ctx := context.Background()

	appLogger := logger.NewZapLogger(logger.LevelWarn, "export-closures")
	defer func() { _ = appLogger.Sync() }()

	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open closure journal: %v", err)
	}
	defer journal.Close()

	var events []*domain.ClosureEvent
	if s := strings.ToUpper(strings.TrimSpace(*symbol)); s != "" {
		events, err = journal.FindBySymbol(ctx, s, *limit)
	} else {
		events, err = journal.Recent(ctx, *limit)
	}
	if err != nil {
		journal.Close()
		log.Fatalf("Error reading closures: %v", err)
	}

	if *out == "-" {
		err = utils.WriteClosuresCSV(os.Stdout, events)
	} else {
		err = utils.WriteClosuresToCSV(events, *out)
	}
	if err != nil {
		journal.Close()
		log.Fatalf("Error writing CSV: %v", err)
	}
	if *out != "-" {
		log.Printf("Exported %d closures to %s", len(events), *out)
	}
}
