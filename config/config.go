package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Вето карт
	VetoTurnTimeout time.Duration
	GameServerAddr  string

	// Турниры
	MinTeamsToStart int

	// Cloudflare R2 (хранилище логотипов), опционально
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// HasR2 сообщает, заполнены ли все поля для подключения к R2.
func (c *Config) HasR2() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intFromEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	vetoTimeoutSec, err := intFromEnv("VETO_TURN_TIMEOUT", 30)
	if err != nil {
		return nil, err
	}
	if vetoTimeoutSec <= 0 {
		return nil, fmt.Errorf("VETO_TURN_TIMEOUT must be positive, got %d", vetoTimeoutSec)
	}

	minTeams, err := intFromEnv("MIN_TEAMS_TO_START", 4)
	if err != nil {
		return nil, err
	}
	if minTeams < 2 {
		return nil, fmt.Errorf("MIN_TEAMS_TO_START must be at least 2, got %d", minTeams)
	}

	gameServerAddr := os.Getenv("GAME_SERVER_ADDR")
	if gameServerAddr == "" {
		gameServerAddr = "192.168.1.56:27015"
	}

	cfg := &Config{
		DatabaseURL:     dbURL,
		JWTSecretKey:    jwtKey,
		ServerPort:      port,
		VetoTurnTimeout: time.Duration(vetoTimeoutSec) * time.Second,
		GameServerAddr:  gameServerAddr,
		MinTeamsToStart: minTeams,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
