// Command dbinit creates or migrates the request-log database schema
// ahead of the first gateway start.
package main

import (
	"flag"
	"os"

	"open-llm-gateway/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	dbPath := flag.String("db", "", "database file path (default $GATEWAY_DB_PATH or gateway.db)")
	dryRun := flag.Bool("dry-run", false, "report what would be migrated without touching the database")
	flag.Parse()

	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{})

	path := *dbPath
	if path == "" {
		path = os.Getenv("GATEWAY_DB_PATH")
	}
	if path == "" {
		path = "gateway.db"
	}

	if *dryRun {
		log.Infof("Would migrate schema in %s: request_logs, backend_stats", path)
		return
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", path, err)
	}

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Infof("Schema ready in %s", path)
}
