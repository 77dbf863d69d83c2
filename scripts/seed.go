package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"shareit/internal/database"
	"shareit/internal/seed"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		driver   = flag.String("driver", "sqlite", "database driver (sqlite or postgres)")
		dsn      = flag.String("dsn", "./data/shareit.db", "sqlite path or postgres url")
	)
	flag.Parse()

	fixtures, err := seed.Read(*seedPath)
	if err != nil {
		return err
	}
	if len(fixtures.Users) == 0 && len(fixtures.Items) == 0 {
		return fmt.Errorf("no users or items in %s", *seedPath)
	}

	db, err := database.Open(*driver, *dsn, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := seed.Apply(ctx, db, fixtures, &logger)
	if err != nil {
		return err
	}

	fmt.Printf("done: users=%d items=%d skipped=%d\n", res.UsersCreated, res.ItemsCreated, res.Skipped)
	return nil
}
