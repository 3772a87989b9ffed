package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/repository/postgres"
	"github.com/joho/godotenv"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying pending ones")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	source := cfg.Database.MigrationsURL()

	fmt.Printf("Migrating database at %s:%d from %s\n", cfg.Database.Host, cfg.Database.Port, source)

	if *down > 0 {
		if err := postgres.RollbackMigrations(dsn, source, *down); err != nil {
			fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rolled back %d migration(s)\n", *down)
		return
	}

	if err := postgres.RunMigrations(dsn, source); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations applied")
}
