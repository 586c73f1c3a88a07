package pipeline

import (
	"context"
	"strings"

	"medallion/internal/events"
	"medallion/internal/lock"
	"medallion/internal/observability"
	"medallion/internal/security"
	"medallion/internal/snowflake"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// PasswordResolver turns a configured password into the real secret
type PasswordResolver func(value string) (string, error)

// KeyringResolver resolves "keyring:<name>" values through the credential store
func KeyringResolver(value string) (string, error) {
	if !strings.HasPrefix(value, security.KeyringPrefix) {
		return value, nil
	}
	cm, err := security.NewCredentialManager()
	if err != nil {
		return "", err
	}
	return cm.ResolvePassword(value)
}

// OpenStore opens the warehouse store named by store.driver
func OpenStore(ctx context.Context, cfg *models.Config, resolve PasswordResolver) (warehouse.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return warehouse.NewMemoryStore(), nil
	case "sqlite", "postgres":
		store, err := warehouse.OpenGorm(cfg.Store.Driver, cfg.Store.DSN, cfg.Store.BatchSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "snowflake":
		sf := cfg.Store.Snowflake
		password := sf.Password
		if resolve != nil {
			var err error
			if password, err = resolve(password); err != nil {
				return nil, err
			}
		}
		store, err := snowflake.Open(ctx, snowflake.Config{
			Account:   sf.Account,
			Username:  sf.Username,
			Password:  password,
			Database:  sf.Database,
			Schema:    sf.Schema,
			Warehouse: sf.Warehouse,
			Role:      sf.Role,
			Timeout:   sf.TimeoutDuration(),
		}, cfg.Store.BatchSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedDriver, "unsupported store driver").
			WithContext("driver", cfg.Store.Driver)
	}
}

// NewLocker returns a Redis lock when lock.redis_addr is set, else an
// in-process one
func NewLocker(ctx context.Context, cfg *models.Config) (lock.Locker, error) {
	if cfg.Lock.RedisAddr == "" {
		return lock.NewLocalLocker(), nil
	}
	return lock.NewRedisLocker(ctx, lock.RedisOptions{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
	})
}

// NewSink always logs events and also sends them to Kafka when brokers are
// configured
func NewSink(cfg *models.Config, logger *observability.Logger) (events.Sink, error) {
	sinks := []events.Sink{events.NewLogSink(logger)}
	if len(cfg.Events.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
	}
	return events.NewMulti(logger, sinks...), nil
}
