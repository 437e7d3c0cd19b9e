// This file is used to run audit database migrations
// How to run:
// go run cmd/migrate/main.go
package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/db"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	var (
		host = flag.String("host", config.GetEnv("DB_HOST", "localhost"), "Database host")
		user = flag.String("user", config.GetEnv("DB_USER", "postgres"), "Database user")
		pass = flag.String("password", config.GetEnv("DB_PASSWORD", ""), "Database password")
		name = flag.String("name", config.GetEnv("DB_NAME", db.DefaultDBName), "Database name")
		port = flag.Int("port", config.GetEnvInt("DB_PORT", 5432), "Database port")
	)
	flag.Parse()

	gdb, err := db.New(db.Options{
		Host:     *host,
		User:     *user,
		Password: *pass,
		DBName:   *name,
		Port:     *port,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}
