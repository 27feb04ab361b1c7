package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gomodule/redigo/redis"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/phillip/volunteer-events-go/logger"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	RegistrationAutoConfirm   = "auto_confirm"
	RegistrationManagerReview = "manager_review"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`

	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DBName   string `env:"DB_NAME" envDefault:"volunteer_events"`

	JWTSecret      string   `env:"JWT_SECRET"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	RegistrationMode string `env:"REGISTRATION_MODE" envDefault:"auto_confirm"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisTLS      bool   `env:"REDIS_TLS" envDefault:"false"`

	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`

	ZeptoAPIURL        string `env:"ZEPTO_API_URL"`
	ZeptoAPIKey        string `env:"ZEPTO_API_KEY"`
	EmailFrom          string `env:"EMAIL_FROM"`
	EmailNotifications bool   `env:"EMAIL_NOTIFICATIONS" envDefault:"false"`

	DispatchInterval    time.Duration `env:"DISPATCH_INTERVAL" envDefault:"2s"`
	DispatchBatchSize   int           `env:"DISPATCH_BATCH_SIZE" envDefault:"100"`
	DispatchMaxAttempts int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`

	MongoClient *mongo.Client `env:"-"`
	RedisPool   *redis.Pool   `env:"-"`
}

// Load reads .env when present, then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.LogI("no .env file found, using process environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.RegistrationMode {
	case RegistrationAutoConfirm, RegistrationManagerReview:
	default:
		return fmt.Errorf("unknown REGISTRATION_MODE %q", c.RegistrationMode)
	}
	if c.DispatchBatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive")
	}
	if c.DispatchMaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// AutoConfirm reports whether new registrations skip manager review.
func (c *Config) AutoConfirm() bool {
	return c.RegistrationMode == RegistrationAutoConfirm
}

// EmailEnabled reports whether notification e-mails can be sent.
func (c *Config) EmailEnabled() bool {
	return c.EmailNotifications && c.ZeptoAPIURL != "" && c.ZeptoAPIKey != "" && c.EmailFrom != ""
}

// ConnectMongo dials MongoDB and stores the client on the config.
func (c *Config) ConnectMongo(ctx context.Context) error {
	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(c.MongoURI),
		options.Client().SetConnectTimeout(10*time.Second),
		options.Client().SetServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping: %w", err)
	}
	c.MongoClient = client
	return nil
}

// Database returns the configured database handle.
func (c *Config) Database() *mongo.Database {
	return c.MongoClient.Database(c.DBName)
}

// NewRedisPool builds the pool used for real-time fan-out. It returns nil
// when REDIS_ADDR is unset.
func (c *Config) NewRedisPool() *redis.Pool {
	if c.RedisAddr == "" {
		return nil
	}
	addr, pass, useTLS := c.RedisAddr, c.RedisPassword, c.RedisTLS
	c.RedisPool = &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, redis.DialPassword(pass), redis.DialUseTLS(useTLS))
		},
		TestOnBorrow: func(conn redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := conn.Do("PING")
			return err
		},
	}
	return c.RedisPool
}
