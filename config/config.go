package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration. It is built once at startup from the
// environment plus an optional YAML file; nothing else reads ambient state.
type Config struct {
	WorkDir          string
	DBPath           string
	HTTPPort         string
	TelegramToken    string
	TelegramAPIBase  string
	ChatID           int64
	AdminIDs         []int64
	CatalogPath      string
	FeedURLs         []string
	CheckIntervalMin int
	SourceTimeoutSec int
	BlockDelayMS     int
	StrictConfig     bool
	Relevance        RelevanceConfig
}

type fileConfig struct {
	WorkDir          string          `json:"work_dir" yaml:"work_dir"`
	DBPath           string          `json:"db_path" yaml:"db_path"`
	HTTPPort         string          `json:"http_port" yaml:"http_port"`
	CatalogPath      string          `json:"catalog_path" yaml:"catalog_path"`
	Feeds            []string        `json:"feeds" yaml:"feeds"`
	CheckIntervalMin *int            `json:"check_interval_min" yaml:"check_interval_min"`
	Relevance        RelevanceConfig `json:"relevance" yaml:"relevance"`
}

const (
	defaultPort          = ":8000"
	defaultWorkDir       = "runtime/work"
	defaultDBFile        = "grants.db"
	defaultCheckInterval = 0 // scheduled runs disabled unless configured
	defaultSourceTimeout = 20
	defaultBlockDelay    = 300
	minSourceTimeout     = 1
	maxSourceTimeout     = 120
)

// Load reads configuration from environment variables and an optional YAML
// file (JSON is accepted too, being a subset of YAML 1.2) and applies sane
// defaults. With STRICT_CONFIG a broken file is fatal instead of a warning.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:  getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		CheckIntervalMin: defaultCheckInterval,
		SourceTimeoutSec: defaultSourceTimeout,
		BlockDelayMS:     defaultBlockDelay,
		StrictConfig:     parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		if !os.IsNotExist(fileErr) {
			log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
		}
	}

	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fileCfg.WorkDir, defaultWorkDir)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	} else if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	} else {
		cfg.DBPath = filepath.Join(cfg.WorkDir, defaultDBFile)
	}

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	cfg.CatalogPath = firstNonEmpty(os.Getenv("CATALOG_PATH"), fileCfg.CatalogPath)
	cfg.FeedURLs = fileCfg.Feeds
	if v := os.Getenv("FEED_URLS"); v != "" {
		cfg.FeedURLs = splitList(v)
	}

	if fileCfg.CheckIntervalMin != nil && *fileCfg.CheckIntervalMin >= 0 {
		cfg.CheckIntervalMin = *fileCfg.CheckIntervalMin
	}
	if v := os.Getenv("CHECK_INTERVAL_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("invalid CHECK_INTERVAL_MIN=%q, keeping %d", v, cfg.CheckIntervalMin)
		} else {
			cfg.CheckIntervalMin = n
		}
	}

	if v := os.Getenv("SOURCE_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid SOURCE_TIMEOUT_SEC=%q, using default %d", v, defaultSourceTimeout)
			n = defaultSourceTimeout
		}
		cfg.SourceTimeoutSec = clampInt(n, minSourceTimeout, maxSourceTimeout)
	}

	if v := os.Getenv("BLOCK_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BlockDelayMS = n
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.ChatID = n
	}

	for _, part := range splitList(os.Getenv("ADMIN_IDS")) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("invalid admin id %q, skipping", part)
			continue
		}
		cfg.AdminIDs = append(cfg.AdminIDs, id)
	}

	cfg.Relevance = MergeRelevance(DefaultRelevance(), fileCfg.Relevance)

	log.Printf("config: work_dir=%s db=%s port=%s feeds=%d interval_min=%d",
		cfg.WorkDir, cfg.DBPath, cfg.HTTPPort, len(cfg.FeedURLs), cfg.CheckIntervalMin)
	return cfg, nil
}

// Admin reports whether a user id is in the allowlist. An empty allowlist
// admits nobody; the bot is useless until ADMIN_IDS is set.
func (c Config) Admin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBoolEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
