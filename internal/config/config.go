package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trainer/internal/nn"
	"trainer/internal/preprocess"
	"trainer/internal/repository"
	"trainer/internal/trainer"
)

// DatabaseURLEnv is read when database.url is not set.
const DatabaseURLEnv = "DATABASE_URL"

// Config holds the training job's configuration.
type Config struct {
	Database struct {
		Driver         string        `yaml:"driver"`
		URL            string        `yaml:"url"`
		Table          string        `yaml:"table"`
		MigrationsPath string        `yaml:"migrations_path"`
		MaxRetries     int           `yaml:"max_retries"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
	} `yaml:"database"`
	Preprocess struct {
		MaxWords int `yaml:"max_words"`
		MaxLen   int `yaml:"max_len"`
	} `yaml:"preprocess"`
	Model struct {
		EmbeddingDim int     `yaml:"embedding_dim"`
		LSTM1Units   int     `yaml:"lstm1_units"`
		LSTM2Units   int     `yaml:"lstm2_units"`
		DenseUnits   int     `yaml:"dense_units"`
		DropoutRate  float64 `yaml:"dropout_rate"`
		LearningRate float64 `yaml:"learning_rate"`
		Beta1        float64 `yaml:"beta1"`
		Beta2        float64 `yaml:"beta2"`
		Epsilon      float64 `yaml:"epsilon"`
	} `yaml:"model"`
	Training struct {
		Epochs          int     `yaml:"epochs"`
		BatchSize       int     `yaml:"batch_size"`
		ValidationSplit float64 `yaml:"validation_split"`
		Seed            int64   `yaml:"seed"`
	} `yaml:"training"`
	Artifacts struct {
		CheckpointPath string `yaml:"checkpoint_path"`
		VocabularyPath string `yaml:"vocabulary_path"`
	} `yaml:"artifacts"`
	StatusServer struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"status_server"`
	Notifications struct {
		Telegram struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token"`
			ChatID   int64  `yaml:"chat_id"`
		} `yaml:"telegram"`
	} `yaml:"notifications"`
}

// Default returns the configuration used for every key the YAML file leaves out.
func Default() *Config {
	config := &Config{}

	config.Database.Driver = repository.DriverPostgres
	config.Database.Table = "ai_chats"
	config.Database.MigrationsPath = "migrations"
	config.Database.RetryDelay = time.Second

	config.Preprocess.MaxWords = 5000
	config.Preprocess.MaxLen = 64

	config.Model.EmbeddingDim = 128
	config.Model.LSTM1Units = 128
	config.Model.LSTM2Units = 64
	config.Model.DenseUnits = 64
	config.Model.DropoutRate = 0.2
	config.Model.LearningRate = 0.001
	config.Model.Beta1 = 0.9
	config.Model.Beta2 = 0.999
	config.Model.Epsilon = 1e-7

	config.Training.Epochs = 10
	config.Training.BatchSize = 32
	config.Training.ValidationSplit = 0.1
	config.Training.Seed = 42

	config.Artifacts.CheckpointPath = "ai_chat_model.json"
	config.Artifacts.VocabularyPath = "tokenizer.json"

	config.StatusServer.Addr = "127.0.0.1:8090"

	return config
}

// LoadConfig reads configuration from the specified YAML file on top of Default.
// An empty path yields the defaults. Environment references are expanded afterwards.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	config.Database.URL = os.ExpandEnv(config.Database.URL)
	if config.Database.URL == "" {
		config.Database.URL = os.Getenv(DatabaseURLEnv)
	}
	config.Notifications.Telegram.BotToken = os.ExpandEnv(config.Notifications.Telegram.BotToken)

	return config, nil
}

// Validate checks that the configuration can drive a training run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case repository.DriverPostgres, repository.DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", repository.DriverPostgres, repository.DriverSQLite, c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (or set %s)", DatabaseURLEnv)
	}
	if c.Database.Table == "" {
		return errors.New("database.table is required")
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("database.max_retries must not be negative, got %d", c.Database.MaxRetries)
	}
	if c.Database.MaxRetries > 0 && c.Database.RetryDelay <= 0 {
		return fmt.Errorf("database.retry_delay must be positive, got %s", c.Database.RetryDelay)
	}

	if err := c.PreprocessConfig().Validate(); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	if err := c.ModelConfig().Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := c.TrainerConfig().Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if c.Artifacts.VocabularyPath == "" {
		return errors.New("artifacts.vocabulary_path is required")
	}
	if c.Artifacts.VocabularyPath == c.Artifacts.CheckpointPath {
		return errors.New("artifacts.checkpoint_path and artifacts.vocabulary_path must differ")
	}

	if c.StatusServer.Enabled && c.StatusServer.Addr == "" {
		return errors.New("status_server.addr is required when the status server is enabled")
	}
	if tg := c.Notifications.Telegram; tg.Enabled && (tg.BotToken == "" || tg.ChatID == 0) {
		return errors.New("notifications.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}

// PreprocessConfig projects the preprocessing section.
func (c *Config) PreprocessConfig() preprocess.Config {
	return preprocess.Config{
		MaxWords: c.Preprocess.MaxWords,
		MaxLen:   c.Preprocess.MaxLen,
	}
}

// ModelConfig projects the model section. The embedding input covers every id
// Encode can emit, so the vocabulary size equals max_words.
func (c *Config) ModelConfig() nn.Config {
	return nn.Config{
		VocabSize:    c.Preprocess.MaxWords,
		SeqLen:       c.Preprocess.MaxLen,
		EmbeddingDim: c.Model.EmbeddingDim,
		LSTM1Units:   c.Model.LSTM1Units,
		LSTM2Units:   c.Model.LSTM2Units,
		DenseUnits:   c.Model.DenseUnits,
		DropoutRate:  c.Model.DropoutRate,
		LearningRate: c.Model.LearningRate,
		Beta1:        c.Model.Beta1,
		Beta2:        c.Model.Beta2,
		Epsilon:      c.Model.Epsilon,
		Seed:         c.Training.Seed,
	}
}

// TrainerConfig projects the training section.
func (c *Config) TrainerConfig() trainer.Config {
	return trainer.Config{
		Epochs:          c.Training.Epochs,
		BatchSize:       c.Training.BatchSize,
		ValidationSplit: c.Training.ValidationSplit,
		Seed:            c.Training.Seed,
		CheckpointPath:  c.Artifacts.CheckpointPath,
	}
}
