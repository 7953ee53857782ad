package main

import (
	"lexlab/internal/catalog"
	"lexlab/internal/config"
	"lexlab/internal/database"
	logger "lexlab/internal/logging"
	"lexlab/internal/repository"
	"lexlab/internal/router"
	"lexlab/internal/runner"
	"lexlab/internal/schedule"
	"lexlab/internal/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize Logger
	log, err := logger.Init(".")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize Configuration
	if err := config.Init(".", log); err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Database
	database.Init(log)

	// Load the word banks and warm-up set at startup
	exp := config.Conf.Experiment
	cat, err := catalog.Load(exp.WordsPath(), exp.WarmupPath())
	if err != nil {
		log.Fatal("Failed to load word banks", zap.Error(err))
	}

	gen := schedule.NewGenerator(cat, schedule.Timing{
		GuessSeconds:    exp.GuessSeconds,
		FeedbackSeconds: exp.FeedbackSeconds,
		ReviewSeconds:   exp.ReviewSeconds,
	})

	recordable := make([]catalog.Phase, 0, len(exp.RecordablePhases))
	for _, p := range exp.RecordablePhases {
		recordable = append(recordable, catalog.Phase(p))
	}

	manager := runner.NewManager(log, gen, repository.Ledger{}, repository.ResponseStore{}, recordable)
	defer manager.CloseAll()

	// Background sweep for sessions whose participants walked away
	sweeper := services.NewSweeper(log, manager)
	sweeper.Start()

	// Setup router, passing the logger to it
	r := router.Setup(log, manager)

	// Start the Gin server
	port := ":" + config.Conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Fatal("Failed to run Gin server", zap.Error(err))
	}
}
