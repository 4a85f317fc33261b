package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chatclient/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// Config содержит настройки клиентского процесса.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Бэкенд
	BackendURL  string        `yaml:"backend_url"`
	RealtimeURL string        `yaml:"realtime_url"`
	SendTimeout time.Duration `yaml:"-"`
	PageTimeout time.Duration `yaml:"-"`

	// Сессии (окна и пузыри чатов)
	MaxOpenSessions int `yaml:"max_open_sessions"`
	PageSize        int `yaml:"page_size"`

	// Вложения
	SpoolDir string `yaml:"spool_dir"`

	// Realtime join retry
	JoinRetryInterval time.Duration `yaml:"-"`
	JoinRetryAttempts int           `yaml:"join_retry_attempts"`
}

// yamlConfig — промежуточная структура для парсинга YAML (таймауты в секундах).
type yamlConfig struct {
	BackendURL        string `yaml:"backend_url"`
	RealtimeURL       string `yaml:"realtime_url"`
	SendTimeoutSec    int    `yaml:"send_timeout"`
	PageTimeoutSec    int    `yaml:"page_timeout"`
	MaxOpenSessions   int    `yaml:"max_open_sessions"`
	PageSize          int    `yaml:"page_size"`
	SpoolDir          string `yaml:"spool_dir"`
	JoinRetryMs       int    `yaml:"join_retry_ms"`
	JoinRetryAttempts int    `yaml:"join_retry_attempts"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию
	yc := yamlConfig{
		BackendURL:        "http://localhost:8080",
		RealtimeURL:       "ws://localhost:8080/ws",
		SendTimeoutSec:    15,
		PageTimeoutSec:    10,
		MaxOpenSessions:   8,
		PageSize:          50,
		SpoolDir:          "./spool",
		JoinRetryMs:       1500,
		JoinRetryAttempts: 10,
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	cfg := &Config{
		BackendURL:        envStr("BACKEND_URL", yc.BackendURL),
		RealtimeURL:       envStr("REALTIME_URL", yc.RealtimeURL),
		SendTimeout:       time.Duration(envInt("SEND_TIMEOUT", yc.SendTimeoutSec)) * time.Second,
		PageTimeout:       time.Duration(envInt("PAGE_TIMEOUT", yc.PageTimeoutSec)) * time.Second,
		MaxOpenSessions:   envInt("MAX_OPEN_SESSIONS", yc.MaxOpenSessions),
		PageSize:          envInt("PAGE_SIZE", yc.PageSize),
		SpoolDir:          envStr("SPOOL_DIR", yc.SpoolDir),
		JoinRetryInterval: time.Duration(envInt("JOIN_RETRY_MS", yc.JoinRetryMs)) * time.Millisecond,
		JoinRetryAttempts: envInt("JOIN_RETRY_ATTEMPTS", yc.JoinRetryAttempts),
	}
	if cfg.MaxOpenSessions <= 0 {
		cfg.MaxOpenSessions = 8
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 50
	}
	if cfg.JoinRetryAttempts <= 0 {
		cfg.JoinRetryAttempts = 10
	}
	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
