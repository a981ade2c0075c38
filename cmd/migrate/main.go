// Command migrate applies or rolls back the link schema for the configured
// database driver.
//
//	migrate up | down | version
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/migrations"
	"github.com/sundayezeilo/shortlink/internal/store/sqlite"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s up|down|version\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}

func run(command string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, dialect, err := open(cfg.Database)
	if err != nil {
		return err
	}

	m, err := migrations.New(db, dialect, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func open(cfg config.DatabaseConfig) (*sql.DB, migrations.Dialect, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.URL())
		return db, migrations.Postgres, err
	case config.DriverSQLite:
		db, err := sql.Open(sqlite.DriverName(cfg.SQLiteDSN), cfg.SQLiteDSN)
		return db, migrations.SQLite, err
	default:
		return nil, "", fmt.Errorf("driver %q has no schema to migrate", cfg.Driver)
	}
}
