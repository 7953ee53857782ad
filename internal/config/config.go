package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

// Config struct is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port                   string `mapstructure:"port"`
	SessionSecret          string `mapstructure:"session_secret"`
	ResearcherPasswordHash string `mapstructure:"researcher_password_hash"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ExperimentConfig holds the experiment design settings: countdown windows,
// which phase completions persist a response, where the word banks live, and
// the idle threshold for abandoning stale sessions.
type ExperimentConfig struct {
	GuessSeconds     int      `mapstructure:"guess_seconds"`
	FeedbackSeconds  int      `mapstructure:"feedback_seconds"`
	ReviewSeconds    int      `mapstructure:"review_seconds"`
	RecordablePhases []string `mapstructure:"recordable_phases"`
	ContentDir       string   `mapstructure:"content_dir"`
	SweepMinutes     int      `mapstructure:"sweep_minutes"`
	AbandonMinutes   int      `mapstructure:"abandon_minutes"`
}

// WordsPath returns the word-bank file location.
func (e ExperimentConfig) WordsPath() string {
	return filepath.Join(e.ContentDir, "words.yaml")
}

// WarmupPath returns the warm-up set file location.
func (e ExperimentConfig) WarmupPath() string {
	return filepath.Join(e.ContentDir, "warmup.yaml")
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-before-running-participants")
	v.SetDefault("server.researcher_password_hash", "")

	// Database defaults
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "lexlab-db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Experiment defaults: 20s guess window, 5s feedback, 15s review.
	// Feedback completions are observation-only and record nothing.
	v.SetDefault("experiment.guess_seconds", 20)
	v.SetDefault("experiment.feedback_seconds", 5)
	v.SetDefault("experiment.review_seconds", 15)
	v.SetDefault("experiment.recordable_phases", []string{"guess", "review"})
	v.SetDefault("experiment.content_dir", "content")
	v.SetDefault("experiment.sweep_minutes", 5)
	v.SetDefault("experiment.abandon_minutes", 60)
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("LEXLAB") // e.g., LEXLAB_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the initial configuration from the file.
	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal the config into our global Conf variable
	if err := v.Unmarshal(&Conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Set up a watch for configuration changes for hot-reloading
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		if err := v.Unmarshal(&Conf); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
		}
	})

	log.Info("Configuration loaded successfully")
	return nil
}
