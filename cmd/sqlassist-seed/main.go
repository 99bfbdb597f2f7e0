package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckmesh/sqlassist/internal/config"
	"github.com/duckmesh/sqlassist/internal/fixtures"
	"github.com/duckmesh/sqlassist/internal/query/sqldb"
)

func main() {
	direction := flag.String("direction", "up", "fixture direction: up|down|status")
	steps := flag.Int("steps", 0, "number of fixture steps; 0 means all for up, 1 for down")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("sqlassist-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqldb.Open(ctx, sqldb.DBConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := fixtures.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fixture up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d fixture(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fixture down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d fixture(s)\n", applied)
	case "status":
		versions, err := runner.Applied(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fixture status failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied fixture versions: %v\n", versions)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
