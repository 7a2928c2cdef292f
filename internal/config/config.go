package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Raffle   RaffleConfig
	VietQR   VietQRConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RaffleConfig struct {
	// TicketCount is the size of the fixed ticket pool, numbered 1..N.
	TicketCount int
	// UnitPrice is the price per ticket in VND.
	UnitPrice int64
	// LockWindow is how long a reservation lock lives before it is reclaimable.
	LockWindow time.Duration
	// SweepInterval drives the optional background sweep; 0 disables it and
	// leaves reclamation entirely to the read paths.
	SweepInterval time.Duration
	PageSize      int
	SessionTTL    time.Duration
}

// VietQRConfig configures the payment QR collaborator. Empty credentials leave
// QR generation disabled; sales still complete without a QR.
type VietQRConfig struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	AccountNo   int64
	AccountName string
	AcqID       int
	Template    string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ticketCount, err := envInt("TICKET_COUNT", 500)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	unitPrice, err := envInt("TICKET_PRICE_VND", 10000)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lockWindow, err := envDuration("LOCK_WINDOW", 3*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sweepInterval, err := envDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessionTTL, err := envDuration("SESSION_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pageSize, err := envInt("TICKET_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accountNo, err := envInt("VIETQR_ACCOUNT_NO", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	acqID, err := envInt("VIETQR_ACQ_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server: ServerConfig{
			Host: envStr("SERVER_HOST", "localhost"),
			Port: serverPort,
		},
		Postgres: PostgresConfig{
			User:     postgresUser,
			Password: postgresPassword,
			Name:     postgresDB,
			Host:     envStr("POSTGRES_HOST", "localhost"),
			Port:     postgresPort,
			SSLMode:  envStr("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Raffle: RaffleConfig{
			TicketCount:   ticketCount,
			UnitPrice:     int64(unitPrice),
			LockWindow:    lockWindow,
			SweepInterval: sweepInterval,
			PageSize:      pageSize,
			SessionTTL:    sessionTTL,
		},
		VietQR: VietQRConfig{
			BaseURL:     envStr("VIETQR_BASE_URL", "https://api.vietqr.io"),
			ClientID:    os.Getenv("VIETQR_CLIENT_ID"),
			APIKey:      os.Getenv("VIETQR_API_KEY"),
			AccountNo:   int64(accountNo),
			AccountName: os.Getenv("VIETQR_ACCOUNT_NAME"),
			AcqID:       acqID,
			Template:    envStr("VIETQR_TEMPLATE", "compact2"),
		},
	}, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
