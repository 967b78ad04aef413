// Package config loads server settings from an optional YAML file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config captures the settings of the shared calendar server.
type Config struct {
	HTTPPort       int
	Driver         string
	SQLiteDSN      string
	SessionTTL     time.Duration
	Location       *time.Location
	WeekStartsOn   time.Weekday
	ReminderWindow time.Duration
	// SessionCleanupSchedule and ReminderSweepSchedule are cron expressions.
	// Empty disables the job.
	SessionCleanupSchedule string
	ReminderSweepSchedule  string
	SMTP                   SMTPConfig
	LogLevel               string
}

// SMTPConfig configures share invitations. An empty Host disables e-mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

// Enabled reports whether invitations should be sent.
func (s SMTPConfig) Enabled() bool { return s.Host != "" }

// fileConfig mirrors the YAML layout. Every leaf is a string so file and
// environment values go through the same parsing.
type fileConfig struct {
	HTTP struct {
		Port string `yaml:"port"`
	} `yaml:"http"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`
	Session struct {
		TTL             string `yaml:"ttl"`
		CleanupSchedule string `yaml:"cleanup_schedule"`
	} `yaml:"session"`
	Calendar struct {
		Timezone       string `yaml:"timezone"`
		WeekStart      string `yaml:"week_start"`
		ReminderWindow string `yaml:"reminder_window"`
		ReminderSweep  string `yaml:"reminder_sweep_schedule"`
	} `yaml:"calendar"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"smtp"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// setting binds one environment variable to its YAML counterpart.
type setting struct {
	env  string
	file *string
}

func (f *fileConfig) settings() []setting {
	return []setting{
		{"SHAREDCAL_HTTP_PORT", &f.HTTP.Port},
		{"SHAREDCAL_STORAGE_DRIVER", &f.Storage.Driver},
		{"SHAREDCAL_SQLITE_DSN", &f.Storage.DSN},
		{"SHAREDCAL_SESSION_TTL", &f.Session.TTL},
		{"SHAREDCAL_SESSION_CLEANUP_SCHEDULE", &f.Session.CleanupSchedule},
		{"SHAREDCAL_TIMEZONE", &f.Calendar.Timezone},
		{"SHAREDCAL_WEEK_START", &f.Calendar.WeekStart},
		{"SHAREDCAL_REMINDER_WINDOW", &f.Calendar.ReminderWindow},
		{"SHAREDCAL_REMINDER_SWEEP_SCHEDULE", &f.Calendar.ReminderSweep},
		{"SHAREDCAL_SMTP_HOST", &f.SMTP.Host},
		{"SHAREDCAL_SMTP_PORT", &f.SMTP.Port},
		{"SHAREDCAL_SMTP_USERNAME", &f.SMTP.Username},
		{"SHAREDCAL_SMTP_PASSWORD", &f.SMTP.Password},
		{"SHAREDCAL_SMTP_FROM", &f.SMTP.From},
		{"SHAREDCAL_BASE_URL", &f.SMTP.BaseURL},
		{"SHAREDCAL_LOG_LEVEL", &f.Log.Level},
	}
}

// ScheduleOff disables a cron job.
const ScheduleOff = "off"

// ConfigFileEnv names the variable pointing at the optional YAML file.
const ConfigFileEnv = "SHAREDCAL_CONFIG"

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPPort:               8080,
		Driver:                 DriverSQLite,
		SQLiteDSN:              "file:sharedcal.db",
		SessionTTL:             7 * 24 * time.Hour,
		Location:               time.UTC,
		WeekStartsOn:           time.Sunday,
		ReminderWindow:         30 * time.Minute,
		SessionCleanupSchedule: "@hourly",
		SMTP:                   SMTPConfig{Port: 587},
		LogLevel:               "info",
	}
}

// Load reads the YAML file named by SHAREDCAL_CONFIG, if any, then applies
// SHAREDCAL_* environment overrides. Missing and invalid values are reported
// together in one error.
func Load() (Config, error) {
	var file fileConfig
	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	for _, s := range file.settings() {
		if value, ok := os.LookupEnv(s.env); ok {
			*s.file = value
		}
	}
	return file.resolve()
}

func (f *fileConfig) resolve() (Config, error) {
	cfg := Defaults()
	var missing, invalid []string

	if v := strings.TrimSpace(f.HTTP.Port); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SHAREDCAL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := strings.ToLower(strings.TrimSpace(f.Storage.Driver)); v != "" {
		switch v {
		case DriverMemory, DriverSQLite:
			cfg.Driver = v
		default:
			invalid = append(invalid, "SHAREDCAL_STORAGE_DRIVER")
		}
	}
	if v := strings.TrimSpace(f.Storage.DSN); v != "" {
		cfg.SQLiteDSN = v
	}

	if v := strings.TrimSpace(f.Session.TTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SHAREDCAL_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if v := strings.TrimSpace(f.Session.CleanupSchedule); v != "" {
		cfg.SessionCleanupSchedule = v
		if strings.EqualFold(v, ScheduleOff) {
			cfg.SessionCleanupSchedule = ""
		}
	}

	if v := strings.TrimSpace(f.Calendar.Timezone); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			invalid = append(invalid, "SHAREDCAL_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}
	switch strings.ToLower(strings.TrimSpace(f.Calendar.WeekStart)) {
	case "", "sunday":
	case "monday":
		cfg.WeekStartsOn = time.Monday
	default:
		invalid = append(invalid, "SHAREDCAL_WEEK_START")
	}
	if v := strings.TrimSpace(f.Calendar.ReminderWindow); v != "" {
		window, err := time.ParseDuration(v)
		if err != nil || window <= 0 {
			invalid = append(invalid, "SHAREDCAL_REMINDER_WINDOW")
		} else {
			cfg.ReminderWindow = window
		}
	}
	if v := strings.TrimSpace(f.Calendar.ReminderSweep); v != "" && !strings.EqualFold(v, ScheduleOff) {
		cfg.ReminderSweepSchedule = v
	}

	cfg.SMTP.Host = strings.TrimSpace(f.SMTP.Host)
	cfg.SMTP.Username = strings.TrimSpace(f.SMTP.Username)
	cfg.SMTP.Password = f.SMTP.Password
	cfg.SMTP.From = strings.TrimSpace(f.SMTP.From)
	cfg.SMTP.BaseURL = strings.TrimSpace(f.SMTP.BaseURL)
	if v := strings.TrimSpace(f.SMTP.Port); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SHAREDCAL_SMTP_PORT")
		} else {
			cfg.SMTP.Port = port
		}
	}
	if cfg.SMTP.Enabled() && cfg.SMTP.From == "" && cfg.SMTP.Username == "" {
		missing = append(missing, "SHAREDCAL_SMTP_FROM")
	}

	if v := strings.ToLower(strings.TrimSpace(f.Log.Level)); v != "" {
		switch v {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = v
		default:
			invalid = append(invalid, "SHAREDCAL_LOG_LEVEL")
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid settings: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
