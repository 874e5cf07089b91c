package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"wellsite/internal/booking"
)

type Config struct {
	Server   Server          `yaml:"server"`
	Cache    Cache           `yaml:"cache"`
	Booking  Booking         `yaml:"booking"`
	Sync     Sync            `yaml:"sync"`
	Redis    Redis           `yaml:"redis"`
	Database Database        `yaml:"database"`
	Kafka    Kafka           `yaml:"kafka"`
	Logging  Logging         `yaml:"logging"`
	Catalog  booking.Catalog `yaml:"catalog"`
}

type Server struct {
	Port   int    `yaml:"port" env:"WELLSITE_PORT"`
	Origin string `yaml:"origin" env:"WELLSITE_ORIGIN"`

	// Hosts the site is served under. Requests for any other host are
	// cross-origin and never touch the caches. Empty means every host.
	Hosts []string `yaml:"hosts" env:"WELLSITE_HOSTS" env-separator:","`

	// RateLimit applies per client IP to the booking API only.
	RateLimit struct {
		PerMinute int `yaml:"perMinute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rateLimit"`
}

type Cache struct {
	Version     string   `yaml:"version" env:"WELLSITE_CACHE_VERSION"`
	ShellName   string   `yaml:"shellName"`
	RuntimeName string   `yaml:"runtimeName"`
	Shell       []string `yaml:"shell"`
	OfflineURL  string   `yaml:"offlineURL"`
	APIPrefixes []string `yaml:"apiPrefixes"`
	APIMarkers  []string `yaml:"apiMarkers"`
	APITimeout  string   `yaml:"apiTimeout"`
	Path        string   `yaml:"path" env:"WELLSITE_CACHE_PATH"`

	RAM struct {
		Max string `yaml:"max"`
	} `yaml:"ram"`

	Writes struct {
		Level         string `yaml:"level"`
		FireAndForget *bool  `yaml:"fireAndForget"`
	} `yaml:"writes"`

	Precache struct {
		Sitemaps []string `yaml:"sitemaps"`
	} `yaml:"precache"`
}

type Booking struct {
	SessionTTL    string `yaml:"sessionTTL"`
	Sessions      string `yaml:"sessions" env:"WELLSITE_SESSIONS"`
	Submitter     string `yaml:"submitter" env:"WELLSITE_SUBMITTER"`
	SubmitTimeout string `yaml:"submitTimeout"`
}

type Sync struct {
	Path        string `yaml:"path" env:"WELLSITE_OUTBOX_PATH"`
	Every       string `yaml:"every"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type Database struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_BOOKING_TOPIC"`
}

type Logging struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Production bool   `yaml:"production" env:"WELLSITE_PRODUCTION"`
	StatsEvery string `yaml:"statsEvery"`
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parse(b)
}

func parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.Origin = strings.TrimRight(cfg.Server.Origin, "/")
	if cfg.Server.RateLimit.PerMinute == 0 {
		cfg.Server.RateLimit.PerMinute = 120
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}

	c := &cfg.Cache
	if c.Version == "" {
		c.Version = "v1"
	}
	if c.ShellName == "" {
		c.ShellName = "app-cache"
	}
	if c.RuntimeName == "" {
		c.RuntimeName = "app-runtime"
	}
	if c.Shell == nil {
		c.Shell = []string{"/", "/index.html", "/manifest.json"}
	}
	if c.OfflineURL == "" {
		c.OfflineURL = "/"
	}
	if c.APIPrefixes == nil {
		c.APIPrefixes = []string{"/api/"}
	}
	if c.APIMarkers == nil {
		c.APIMarkers = []string{"supabase"}
	}
	if c.APITimeout == "" {
		c.APITimeout = "10s"
	}
	if c.Path == "" {
		c.Path = "./data/cache"
	}
	if c.RAM.Max == "" {
		c.RAM.Max = "64m"
	}
	if c.Writes.Level == "" {
		c.Writes.Level = "debug"
	}
	if c.Writes.FireAndForget == nil {
		t := true
		c.Writes.FireAndForget = &t
	}

	b := &cfg.Booking
	if b.SessionTTL == "" {
		b.SessionTTL = "10m"
	}
	if b.Sessions == "" {
		b.Sessions = "memory"
	}
	if b.Submitter == "" {
		b.Submitter = "log"
	}
	if b.SubmitTimeout == "" {
		b.SubmitTimeout = "15s"
	}

	if cfg.Sync.Path == "" {
		cfg.Sync.Path = "./data/outbox"
	}
	if cfg.Sync.Every == "" {
		cfg.Sync.Every = "1m"
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 10
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "booking-requests"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Origin == "" {
		return fmt.Errorf("server.origin is required")
	}
	if !strings.HasPrefix(cfg.Server.Origin, "http://") && !strings.HasPrefix(cfg.Server.Origin, "https://") {
		return fmt.Errorf("server.origin: must be an http(s) URL, got %q", cfg.Server.Origin)
	}

	if cfg.Server.RateLimit.PerMinute < 0 || cfg.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rateLimit: must not be negative")
	}

	c := cfg.Cache
	if c.ShellName == c.RuntimeName {
		return fmt.Errorf("cache.runtimeName: must differ from cache.shellName")
	}
	for i, p := range c.Shell {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("cache.shell[%d]: invalid path %q", i, p)
		}
	}
	for i, p := range c.APIPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("cache.apiPrefixes[%d]: invalid prefix %q", i, p)
		}
	}
	if !strings.HasPrefix(c.OfflineURL, "/") {
		return fmt.Errorf("cache.offlineURL: invalid path %q", c.OfflineURL)
	}
	if err := positiveDuration("cache.apiTimeout", c.APITimeout); err != nil {
		return err
	}
	if _, err := parseBytes(c.RAM.Max); err != nil {
		return fmt.Errorf("cache.ram.max: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Writes.Level); err != nil {
		return fmt.Errorf("cache.writes.level: %w", err)
	}

	b := cfg.Booking
	if err := positiveDuration("booking.sessionTTL", b.SessionTTL); err != nil {
		return err
	}
	if err := positiveDuration("booking.submitTimeout", b.SubmitTimeout); err != nil {
		return err
	}
	switch b.Sessions {
	case "memory", "redis":
	default:
		return fmt.Errorf("booking.sessions: unknown store %q", b.Sessions)
	}
	switch b.Submitter {
	case "log", "kafka":
	case "postgres":
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for booking.submitter=postgres")
		}
	default:
		return fmt.Errorf("booking.submitter: unknown submitter %q", b.Submitter)
	}
	if b.Submitter == "kafka" && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for booking.submitter=kafka")
	}

	if err := positiveDuration("sync.every", cfg.Sync.Every); err != nil {
		return err
	}
	if cfg.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.maxAttempts: must not be negative")
	}

	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.StatsEvery != "" {
		if err := positiveDuration("logging.statsEvery", cfg.Logging.StatsEvery); err != nil {
			return err
		}
	}

	if err := cfg.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

func positiveDuration(field, s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", field)
	}
	return nil
}

// mustDuration is only called on fields validate has already accepted.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c Cache) APITimeoutDuration() time.Duration { return mustDuration(c.APITimeout) }

func (c Cache) RAMMaxBytes() int64 {
	n, _ := parseBytes(c.RAM.Max)
	return n
}

func (c Cache) WriteLevel() zapcore.Level {
	l, _ := zapcore.ParseLevel(c.Writes.Level)
	return l
}

func (b Booking) SessionTTLDuration() time.Duration    { return mustDuration(b.SessionTTL) }
func (b Booking) SubmitTimeoutDuration() time.Duration { return mustDuration(b.SubmitTimeout) }
func (s Sync) EveryDuration() time.Duration            { return mustDuration(s.Every) }

func (l Logging) StatsEveryDuration() time.Duration {
	if l.StatsEvery == "" {
		return 0
	}
	return mustDuration(l.StatsEvery)
}

func (l Logging) ZapLevel() zapcore.Level {
	lv, _ := zapcore.ParseLevel(l.Level)
	return lv
}
