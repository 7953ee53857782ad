package database

import (
	"fmt"

	"lexlab/internal/config"
	logging "lexlab/internal/logging"
	"lexlab/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(log *zap.Logger) {
	var err error
	dbConf := config.Conf.Database
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logging.NewGormZapLogger(log),
	})

	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	log.Info("Database connection established successfully.")
	runMigrations(log)
}

func runMigrations(log *zap.Logger) {
	err := DB.AutoMigrate(
		&models.Participant{},
		&models.Response{},
	)
	if err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database migrations completed successfully.")

	// The composite unique index is the store-side idempotency key: even if
	// both in-memory guards are bypassed, a second row for the same
	// (participant, trial, phase) cannot land.
	responseIdentity := `CREATE UNIQUE INDEX IF NOT EXISTS idx_response_identity ON responses (participant_id, sequence_index, phase);`
	if err := DB.Exec(responseIdentity).Error; err != nil {
		log.Fatal("Failed to create response identity index", zap.Error(err))
	}
	log.Info("Custom indexes ensured successfully.")
}
