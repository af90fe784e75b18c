package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	// QuestionServiceURL switches question sourcing from the embedded bank
	// to an external HTTP service.
	QuestionServiceURL string

	// PublicBaseURL is the externally visible origin, used for share links
	// behind a reverse proxy.
	PublicBaseURL string

	AllowedOrigins []string

	RoomTTL         time.Duration
	StartAckTimeout time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		RoomTTL:         time.Hour,
		StartAckTimeout: 5 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.QuestionServiceURL = strings.TrimSpace(os.Getenv("QUESTION_SERVICE_URL"))
	cfg.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("ROOM_TTL")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, errors.New("ROOM_TTL must be seconds or a duration like 1h")
		}
		cfg.RoomTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("START_ACK_TIMEOUT")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, errors.New("START_ACK_TIMEOUT must be seconds or a duration like 5s")
		}
		cfg.StartAckTimeout = d
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

// parseDuration accepts a bare number of seconds or a Go duration string.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid duration")
	}
	return d, nil
}
