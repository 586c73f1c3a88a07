package models

import "time"

type Config struct {
	Sources  Sources  `yaml:"sources"`
	Store    Store    `yaml:"store"`
	Pipeline Pipeline `yaml:"pipeline"`
	Schedule Schedule `yaml:"schedule"`
	Lock     Lock     `yaml:"lock"`
	Events   Events   `yaml:"events"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Sources lists the six raw CSV feeds, relative to Dir unless absolute
type Sources struct {
	Dir           string `yaml:"dir"`
	CRMCustomers  string `yaml:"crm_customers"`
	CRMProducts   string `yaml:"crm_products"`
	CRMSales      string `yaml:"crm_sales"`
	ERPCustomers  string `yaml:"erp_customers"`
	ERPLocations  string `yaml:"erp_locations"`
	ERPCategories string `yaml:"erp_categories"`
}

type Store struct {
	Driver    string    `yaml:"driver"` // "sqlite", "postgres", "snowflake", "memory"
	DSN       string    `yaml:"dsn"`
	Snowflake Snowflake `yaml:"snowflake"`
	Retention int       `yaml:"retention"`  // Snapshots kept after each publish, 0 keeps all
	BatchSize int       `yaml:"batch_size"` // Rows per INSERT statement
}

type Snowflake struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"` // Plain value or "keyring:<name>"
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Timeout   string `yaml:"timeout"`
}

// Pipeline contains run-time settings for a single run
type Pipeline struct {
	StageTimeout string `yaml:"stage_timeout"` // e.g., "5m"
	RunTimeout   string `yaml:"run_timeout"`   // e.g., "30m"
	Parallel     bool   `yaml:"parallel"`      // Conform silver entities concurrently
	Timezone     string `yaml:"timezone"`      // Location used to interpret dates
	HistoryDir   string `yaml:"history_dir"`   // Where run and activation records are kept
}

type Schedule struct {
	Cron        string `yaml:"cron"`         // Six-field cron spec, seconds first
	MetricsAddr string `yaml:"metrics_addr"` // e.g., ":9090"
}

type Lock struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

type Events struct {
	Kafka Kafka `yaml:"kafka"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"` // Prometheus textfile-collector output
}

// StageTimeoutDuration returns the per-stage timeout, or 0 when unset or invalid
func (p Pipeline) StageTimeoutDuration() time.Duration {
	return parseDuration(p.StageTimeout)
}

// RunTimeoutDuration returns the whole-run timeout, or 0 when unset or invalid
func (p Pipeline) RunTimeoutDuration() time.Duration {
	return parseDuration(p.RunTimeout)
}

// Location resolves Timezone, falling back to UTC
func (p Pipeline) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (l Lock) TTLDuration() time.Duration {
	return parseDuration(l.TTL)
}

func (s Snowflake) TimeoutDuration() time.Duration {
	return parseDuration(s.Timeout)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
