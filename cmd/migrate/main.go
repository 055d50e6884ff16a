package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rizrmd/travel-sub003/internal/database"
	"github.com/rizrmd/travel-sub003/pkg/alerting"
	"github.com/rizrmd/travel-sub003/pkg/config"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML configuration file")
		command    = flag.String("command", "migrate", "Command to run: migrate, check, cleanup")
	)
	flag.Parse()

	if err := config.ValidateConfigPath(*configFile); err != nil {
		log.Fatalf("Invalid config file: %v", err)
	}

	var root struct {
		Database *database.Config `yaml:"database"`
	}
	loader := config.NewLoader("TRAVEL")
	if err := loader.Load(*configFile, &root); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(root.Database, alerting.Contacts{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *command {
	case "migrate":
		if err := db.Migrate(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "check":
		if err := db.HealthCheck(ctx); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		fmt.Println("Database is healthy")

	case "cleanup":
		if err := db.Connection().Cleanup(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Println("Cleanup completed successfully")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		os.Exit(1)
	}
}
