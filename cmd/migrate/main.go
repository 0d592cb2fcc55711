package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/rl-arena/codebattle-backend/pkg/database"
	"github.com/rl-arena/codebattle-backend/pkg/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back the latest migration")
	flag.Parse()

	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	logger.Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	m, err := database.NewMigrator(dbURL, logger.Named("migrate"))
	if err != nil {
		logger.Fatal("Failed to open migrator", "error", err)
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil {
		logger.Fatal("Migration failed", "error", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		fmt.Println("No migrations applied")
		return
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
}
