package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/database"
	"innkeeper/internal/export"
	"innkeeper/internal/logging"
	"innkeeper/internal/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	fromFlag := flag.String("from", "", "first night to export, YYYY-MM-DD (default today)")
	toFlag := flag.String("to", "", "last night to export, YYYY-MM-DD (default from + 30 days)")
	outFlag := flag.String("out", "", "output directory (default exports.path from config)")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "export").Logger()

	from, to, err := exportWindow(*fromFlag, *toFlag, models.DateOnly(time.Now().In(cfg.Booking.Location())))
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	dir := *outFlag
	if dir == "" {
		dir = cfg.Exports.Path
	}

	path, err := export.NewExporter(db, dir, &logger).Export(context.Background(), from, to)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// exportWindow resolves the -from/-to flags against today.
func exportWindow(rawFrom, rawTo string, today time.Time) (time.Time, time.Time, error) {
	from := today
	if rawFrom != "" {
		d, err := models.ParseDate(rawFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from %q: %w", rawFrom, err)
		}
		from = d
	}

	to := from.AddDate(0, 0, models.DefaultExportRangeDays)
	if rawTo != "" {
		d, err := models.ParseDate(rawTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to %q: %w", rawTo, err)
		}
		to = d
	}
	return from, to, nil
}
