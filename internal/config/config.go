package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures API credentials, the target ruleset, storage locations,
// crawl bounds, and query limits.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Mode        string            `yaml:"mode"`
	Storage     StorageConfig     `yaml:"storage"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Recommend   RecommendConfig   `yaml:"recommend"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
}

type CredentialsConfig struct {
	// osu! OAuth client credentials. If empty, read from env
	// OSU_CLIENT_ID / OSU_CLIENT_SECRET.
	ClientID     int64  `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
	// MapDir holds downloaded .osu chart files, keyed by beatmap id.
	MapDir string `yaml:"mapDir"`
}

type CrawlConfig struct {
	// Ranking pages to walk, 1-based inclusive.
	FirstPage int `yaml:"firstPage"`
	LastPage  int `yaml:"lastPage"`
}

type RecommendConfig struct {
	// Per-shard row cap for relationship queries.
	ShardLimit int `yaml:"shardLimit"`
	// Maximum recommendations returned.
	ResultLimit int `yaml:"resultLimit"`
}

type SimulatorConfig struct {
	// External pp calculator binary; receives the chart path, the mod
	// bitmask and the ruleset, and prints a pp value.
	Command string `yaml:"command"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Mode:      "fruits",
		Storage:   StorageConfig{DBPath: "./kudosu.db", MapDir: "./data/maps"},
		Crawl:     CrawlConfig{FirstPage: 1, LastPage: 200},
		Recommend: RecommendConfig{ShardLimit: 100, ResultLimit: 20},
		Simulator: SimulatorConfig{Command: "rosu-pp-cli"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ClientID == 0 {
		if v, err := strconv.ParseInt(os.Getenv("OSU_CLIENT_ID"), 10, 64); err == nil {
			c.Credentials.ClientID = v
		}
	}
	if c.Credentials.ClientSecret == "" {
		c.Credentials.ClientSecret = os.Getenv("OSU_CLIENT_SECRET")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
