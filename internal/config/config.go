package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Redis    RedisConfig    `yaml:"redis"`
	Reminder ReminderConfig `yaml:"reminder"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// SMTPConfig configures the outgoing reminder mail transport.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// MirrorConfig configures the secondary (read-replica-like) store endpoint.
// The mirror is best-effort: when disabled or unreachable the primary store
// keeps working and the mirror is left stale.
type MirrorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RedisConfig enables the optional async mirror queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReminderConfig holds the scanner timing knobs. Window low/high are offsets
// from "now"; a block whose start time falls inside [now+low, now+high) is
// eligible for dispatch on that tick.
type ReminderConfig struct {
	IntervalSeconds   int  `yaml:"interval_seconds"`
	WindowLowMinutes  int  `yaml:"window_low_minutes"`
	WindowHighMinutes int  `yaml:"window_high_minutes"`
	LockTTLMinutes    int  `yaml:"lock_ttl_minutes"`
	MinLeadMinutes    int  `yaml:"min_lead_minutes"`
	Verbose           bool `yaml:"verbose"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func (r *ReminderConfig) Interval() time.Duration {
	if r.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.IntervalSeconds) * time.Second
}

func (r *ReminderConfig) WindowLow() time.Duration {
	if r.WindowLowMinutes <= 0 {
		return 9 * time.Minute
	}
	return time.Duration(r.WindowLowMinutes) * time.Minute
}

func (r *ReminderConfig) WindowHigh() time.Duration {
	if r.WindowHighMinutes <= 0 {
		return 12 * time.Minute
	}
	return time.Duration(r.WindowHighMinutes) * time.Minute
}

// LockTTL must exceed the longest plausible end-to-end delivery time.
// Default is five scanner intervals.
func (r *ReminderConfig) LockTTL() time.Duration {
	if r.LockTTLMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.LockTTLMinutes) * time.Minute
}

func (r *ReminderConfig) MinLead() time.Duration {
	if r.MinLeadMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.MinLeadMinutes) * time.Minute
}

func (m *MirrorConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "studyblocks.db",
		},
		JWT: JWTConfig{
			Secret:     "studyblocks-secret-key-change-in-production",
			ExpireHour: 24,
		},
		SMTP: SMTPConfig{
			Enabled: false,
			Port:    587,
		},
		Mirror: MirrorConfig{
			Enabled:        false,
			TimeoutSeconds: 5,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Reminder: ReminderConfig{
			IntervalSeconds:   60,
			WindowLowMinutes:  9,
			WindowHighMinutes: 12,
			LockTTLMinutes:    5,
			MinLeadMinutes:    15,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.SMTP.Enabled = true
		c.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.SMTP.Port = p
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		c.SMTP.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		c.SMTP.Password = pass
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		c.SMTP.From = from
	}
	if baseURL := os.Getenv("MIRROR_BASE_URL"); baseURL != "" {
		c.Mirror.Enabled = true
		c.Mirror.BaseURL = baseURL
	}
	if apiKey := os.Getenv("MIRROR_API_KEY"); apiKey != "" {
		c.Mirror.APIKey = apiKey
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
