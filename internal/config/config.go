package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// Engine tuning.
	LockWait      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration

	// Optional collaborators; empty disables them.
	RedisAddr       string
	BalanceCacheTTL time.Duration
	KafkaBrokers    []string
	AuditTopic      string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	lockWait, err := durationEnv("ENGINE_LOCK_WAIT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := durationEnv("ENGINE_RETRY_BACKOFF", 50*time.Millisecond)
	if err != nil {
		return nil, err
	}
	retryAttempts, err := intEnv("ENGINE_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationEnv("BALANCE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "ledger.audit"
	}

	return &Config{
		DBSource:        dbSource,
		Port:            port,
		Env:             env,
		LockWait:        lockWait,
		RetryAttempts:   retryAttempts,
		RetryBackoff:    retryBackoff,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		BalanceCacheTTL: cacheTTL,
		KafkaBrokers:    brokers,
		AuditTopic:      auditTopic,
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
