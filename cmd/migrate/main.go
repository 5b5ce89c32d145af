package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/cacchoeira/FinanceProject/pkg/observability"
	"github.com/cacchoeira/FinanceProject/pkg/storage/migrations"
	"github.com/cacchoeira/FinanceProject/pkg/storage/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
	if err := run(os.Args[1], logger); err != nil {
		logger.WithError(err).Error("migration command failed")
		os.Exit(1)
	}
}

func run(command string, logger *observability.Logger) error {
	dbURL := os.Getenv("FINANCE_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	db, err := postgres.Open(context.Background(), postgres.Config{URL: dbURL, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(db)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
		logger.Info("Last migration rolled back")
	case "version", "status":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current migration version")
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up       Apply all pending migrations")
	fmt.Println("  down     Roll back the most recent migration")
	fmt.Println("  version  Print the applied version")
}
