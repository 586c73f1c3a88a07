package snowflake

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"medallion/pkg/errors"

	"github.com/snowflakedb/gosnowflake"
)

// Snowflake error number for rejected credentials
const errNumberBadCredentials = 390100

// Config holds Snowflake connection configuration
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// Validate checks the fields a connection cannot be opened without
func (c Config) Validate() error {
	switch {
	case c.Account == "":
		return errors.ConfigError("snowflake account is required", "store.snowflake.account")
	case c.Username == "":
		return errors.ConfigError("snowflake username is required", "store.snowflake.username")
	case c.Password == "":
		return errors.New(errors.ErrCodeMissingCredentials, "snowflake password is required").
			WithContext("field", "store.snowflake.password").
			WithSuggestions("Run 'medallion credentials set <name>' and reference it as keyring:<name>")
	case c.Database == "":
		return errors.ConfigError("snowflake database is required", "store.snowflake.database")
	}
	return nil
}

// DSN renders the connection string understood by the gosnowflake driver
func (c Config) DSN() (string, error) {
	schema := c.Schema
	if schema == "" {
		schema = "PUBLIC"
	}
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:      c.Account,
		User:         c.Username,
		Password:     c.Password,
		Database:     c.Database,
		Schema:       schema,
		Warehouse:    c.Warehouse,
		Role:         c.Role,
		LoginTimeout: c.timeout(),
	})
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// Service owns the Snowflake connection pool
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{config: config}
}

// NewServiceWithDB wraps an already open pool
func NewServiceWithDB(db *sql.DB, config Config) *Service {
	return &Service{db: db, config: config, connected: true}
}

// Connect establishes a connection to Snowflake, retrying transient failures
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := s.config.Validate(); err != nil {
		return err
	}

	dsn, err := s.config.DSN()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to build Snowflake DSN").
			WithContext("account", s.config.Account)
	}

	return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
		db, err := sql.Open("snowflake", dsn)
		if err != nil {
			return errors.ConnectionError("Failed to open Snowflake connection", err).
				WithContext("account", s.config.Account).
				WithContext("warehouse", s.config.Warehouse)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(10 * time.Minute)

		pingCtx, cancel := s.getContext(ctx)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			db.Close()

			if isAuthError(err) {
				return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Authentication failed").
					WithContext("user", s.config.Username).
					WithSuggestions(
						"Verify your username and password",
						"Check if your account is locked",
					)
			}

			return errors.ConnectionError("Failed to connect to Snowflake", err).
				WithContext("account", s.config.Account).
				AsRecoverable()
		}

		s.db = db
		s.connected = true
		return nil
	})
}

// DB returns the connection pool
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to close connection")
	}
	return nil
}

// InTransaction runs fn inside one transaction. Any error rolls back.
func (s *Service) InTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before executing SQL")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
	}
	return nil
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.config.timeout())
}

// sqlError classifies a driver failure and keeps the Snowflake error number
func sqlError(message, query string, err error) *errors.AppError {
	appErr := errors.SQLError(message, query, err)

	var sfErr *gosnowflake.SnowflakeError
	if stderrors.As(err, &sfErr) {
		appErr.WithContext("sql_state", sfErr.SQLState).
			WithContext("error_number", sfErr.Number)
		if sfErr.QueryID != "" {
			appErr.WithContext("query_id", sfErr.QueryID)
		}
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found") {
		appErr.WithSuggestions(
			"Run 'medallion snapshots init' to create the medallion tables",
			"Check the configured database and schema",
		)
	}
	return appErr
}

func isAuthError(err error) bool {
	var sfErr *gosnowflake.SnowflakeError
	if stderrors.As(err, &sfErr) && sfErr.Number == errNumberBadCredentials {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "authentication")
}
