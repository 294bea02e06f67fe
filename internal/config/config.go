package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Media   MediaConfig
	Session SessionConfig
	Ledger  LedgerConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	media, err := loadMediaConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	ledger, err := loadLedgerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Media: media, Session: session, Ledger: ledger, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// MediaConfig describes where session files live and how audio is re-encoded.
type MediaConfig struct {
	WorkDir        string
	UploadDir      string
	MaxUploadBytes int64
	FFmpegPath     string
	FFprobePath    string
	Bitrate        string
}

func loadMediaConfig() (MediaConfig, error) {
	workDir := getEnvOrDefault("TAGBOT_WORK_DIR", filepath.Join(os.TempDir(), "tagbot"))
	uploadDir := getEnvOrDefault("TAGBOT_UPLOAD_DIR", filepath.Join(workDir, "uploads"))

	maxUploadMB := 50
	if override, err := parseOptionalIntEnv("TAGBOT_MAX_UPLOAD_MB"); err != nil {
		return MediaConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return MediaConfig{}, fmt.Errorf("invalid TAGBOT_MAX_UPLOAD_MB value %d: must be positive", *override)
		}
		maxUploadMB = *override
	}

	bitrate := getEnvOrDefault("TAGBOT_MP3_BITRATE", "320k")
	if !strings.HasSuffix(bitrate, "k") {
		return MediaConfig{}, fmt.Errorf("invalid TAGBOT_MP3_BITRATE value %q: expected e.g. 320k", bitrate)
	}
	if _, err := strconv.Atoi(strings.TrimSuffix(bitrate, "k")); err != nil {
		return MediaConfig{}, fmt.Errorf("invalid TAGBOT_MP3_BITRATE value %q: %w", bitrate, err)
	}

	return MediaConfig{
		WorkDir:        workDir,
		UploadDir:      uploadDir,
		MaxUploadBytes: int64(maxUploadMB) << 20,
		FFmpegPath:     getEnvOrDefault("TAGBOT_FFMPEG", "ffmpeg"),
		FFprobePath:    getEnvOrDefault("TAGBOT_FFPROBE", "ffprobe"),
		Bitrate:        bitrate,
	}, nil
}

// SessionConfig bounds how long an abandoned conversation may hold its files.
type SessionConfig struct {
	TTL             time.Duration
	SweepInterval   time.Duration
	DefaultLanguage string
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("TAGBOT_SESSION_TTL", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("TAGBOT_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		TTL:             ttl,
		SweepInterval:   sweep,
		DefaultLanguage: getEnvOrDefault("TAGBOT_DEFAULT_LANGUAGE", "en"),
	}, nil
}

// LedgerConfig selects the thanks ledger backend.
type LedgerConfig struct {
	Backend string
	Path    string
}

func loadLedgerConfig() (LedgerConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("TAGBOT_LEDGER_BACKEND", "file"))

	var path string
	switch backend {
	case "file":
		path = getEnvOrDefault("TAGBOT_LEDGER_PATH", "thanks_list.txt")
	case "sqlite":
		path = getEnvOrDefault("TAGBOT_LEDGER_PATH", "thanks.db")
	case "bolt":
		path = getEnvOrDefault("TAGBOT_LEDGER_PATH", "thanks.bolt")
	default:
		return LedgerConfig{}, fmt.Errorf("invalid TAGBOT_LEDGER_BACKEND value %q: expected file, sqlite or bolt", backend)
	}

	return LedgerConfig{Backend: backend, Path: path}, nil
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q", level)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: expected console or json", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
