package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(DatabaseURLEnv, "postgres://localhost/chats")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/chats" {
		t.Errorf("Database.URL = %q, want value of %s", cfg.Database.URL, DatabaseURLEnv)
	}
	if cfg.Preprocess.MaxWords != 5000 || cfg.Preprocess.MaxLen != 64 {
		t.Errorf("preprocess = %+v", cfg.Preprocess)
	}
	if cfg.Training.Epochs != 10 || cfg.Training.BatchSize != 32 || cfg.Training.ValidationSplit != 0.1 || cfg.Training.Seed != 42 {
		t.Errorf("training = %+v", cfg.Training)
	}
	if cfg.Artifacts.CheckpointPath != "ai_chat_model.json" || cfg.Artifacts.VocabularyPath != "tokenizer.json" {
		t.Errorf("artifacts = %+v", cfg.Artifacts)
	}
	if cfg.Database.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.Database.MaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_FileOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("CHATS_DB", "/data/chats.db")
	t.Setenv("BOT_TOKEN", "secret")

	path := writeConfig(t, `
database:
  driver: sqlite
  url: ${CHATS_DB}
  max_retries: 3
  retry_delay: 250ms
model:
  dropout_rate: 0
training:
  epochs: 2
notifications:
  telegram:
    enabled: true
    bot_token: ${BOT_TOKEN}
    chat_id: 1234
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.URL != "/data/chats.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.MaxRetries != 3 || cfg.Database.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry = %d / %s", cfg.Database.MaxRetries, cfg.Database.RetryDelay)
	}
	if cfg.Model.DropoutRate != 0 {
		t.Errorf("DropoutRate = %v, want explicit 0", cfg.Model.DropoutRate)
	}
	if cfg.Training.Epochs != 2 || cfg.Training.BatchSize != 32 {
		t.Errorf("training = %+v", cfg.Training)
	}
	if cfg.Notifications.Telegram.BotToken != "secret" {
		t.Errorf("BotToken = %q", cfg.Notifications.Telegram.BotToken)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("LoadConfig() expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "training:\n  epochs: [1\n")); err == nil {
		t.Error("LoadConfig() expected error for malformed YAML")
	}
	if _, err := LoadConfig(writeConfig(t, "trainig:\n  epochs: 1\n")); err == nil {
		t.Error("LoadConfig() expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"missing url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"negative retries", func(c *Config) { c.Database.MaxRetries = -1 }, "max_retries"},
		{"tiny vocabulary", func(c *Config) { c.Preprocess.MaxWords = 1 }, "preprocess"},
		{"bad dropout", func(c *Config) { c.Model.DropoutRate = 1 }, "model"},
		{"zero epochs", func(c *Config) { c.Training.Epochs = 0 }, "training"},
		{"same artifact paths", func(c *Config) { c.Artifacts.VocabularyPath = c.Artifacts.CheckpointPath }, "must differ"},
		{"telegram without token", func(c *Config) { c.Notifications.Telegram.Enabled = true }, "telegram"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/chats"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestProjections(t *testing.T) {
	cfg := Default()
	cfg.Preprocess.MaxWords = 300
	cfg.Preprocess.MaxLen = 12
	cfg.Training.Seed = 7

	m := cfg.ModelConfig()
	if m.VocabSize != 300 || m.SeqLen != 12 || m.Seed != 7 {
		t.Errorf("ModelConfig() = %+v", m)
	}
	tr := cfg.TrainerConfig()
	if tr.CheckpointPath != cfg.Artifacts.CheckpointPath || tr.Seed != 7 {
		t.Errorf("TrainerConfig() = %+v", tr)
	}
	if p := cfg.PreprocessConfig(); p.MaxWords != 300 || p.MaxLen != 12 {
		t.Errorf("PreprocessConfig() = %+v", p)
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	t.Setenv(DatabaseURLEnv, "postgres://localhost/chats")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Model.Epsilon != 1e-7 || cfg.Database.Table != "ai_chats" {
		t.Errorf("unexpected values: epsilon %v table %q", cfg.Model.Epsilon, cfg.Database.Table)
	}
}
