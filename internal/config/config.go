package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Scraper   ScraperConfig
	Discovery DiscoveryConfig
	Ingest    IngestConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Titles    TitlesConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type FetchConfig struct {
	// Engine selects "http" or "browser".
	Engine     string
	Timeout    time.Duration
	UserAgents []string
}

type ScraperConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
	DelayMin    time.Duration
	DelayMax    time.Duration
	CooldownMin time.Duration
	CooldownMax time.Duration
}

type DiscoveryConfig struct {
	Limit         int
	RespectRobots bool
}

type IngestConfig struct {
	SearchTerms  []string
	TermSample   int
	SeedURLs     []string
	OutputPath   string
	UploadAssets bool
	RelayFlush   bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	Locale         string
	TimezoneID     string
}

type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	PublicDomain    string
	KeyPrefix       string
}

type TitlesConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	MinFetchTimeout = 10 * time.Second
	MaxFetchTimeout = 30 * time.Second
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Fetch: FetchConfig{
			Engine:     getEnvOrDefault("FETCH_ENGINE", "http"),
			Timeout:    getDurationOrDefault("FETCH_TIMEOUT", 20*time.Second),
			UserAgents: getStringSliceOrDefault("FETCH_USER_AGENTS", DefaultUserAgents()),
		},
		Scraper: ScraperConfig{
			MaxRetries:  getIntOrDefault("SCRAPER_MAX_RETRIES", 2),
			RetryDelay:  getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
			Concurrency: getIntOrDefault("SCRAPER_CONCURRENCY", 3),
			DelayMin:    getDurationOrDefault("SCRAPER_DELAY_MIN", 5*time.Second),
			DelayMax:    getDurationOrDefault("SCRAPER_DELAY_MAX", 15*time.Second),
			CooldownMin: getDurationOrDefault("SCRAPER_COOLDOWN_MIN", 15*time.Second),
			CooldownMax: getDurationOrDefault("SCRAPER_COOLDOWN_MAX", 45*time.Second),
		},
		Discovery: DiscoveryConfig{
			Limit:         getIntOrDefault("DISCOVERY_LIMIT", 5),
			RespectRobots: getBoolOrDefault("DISCOVERY_RESPECT_ROBOTS", false),
		},
		Ingest: IngestConfig{
			SearchTerms:  getStringSliceOrDefault("INGEST_SEARCH_TERMS", nil),
			TermSample:   getIntOrDefault("INGEST_TERM_SAMPLE", 3),
			SeedURLs:     getStringSliceOrDefault("INGEST_SEED_URLS", nil),
			OutputPath:   getEnvOrDefault("SCRAPED_ITEMS_OUTPUT", "data/scraped-items.json"),
			UploadAssets: getBoolOrDefault("INGEST_UPLOAD_ASSETS", false),
			RelayFlush:   getBoolOrDefault("INGEST_RELAY_FLUSH", false),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
		},
		Database: DatabaseConfig{
			Enabled:     getBoolOrDefault("DB_ENABLED", false),
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			Name:        getEnvOrDefault("DB_NAME", "priceguess"),
			SSLMode:     getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			AutoMigrate: getBoolOrDefault("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:items"),
		},
		Storage: StorageConfig{
			AccountID:       getEnvOrDefault("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnvOrDefault("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnvOrDefault("AWS_SECRET_ACCESS_KEY", ""),
			Region:          getEnvOrDefault("AWS_REGION", "auto"),
			Bucket:          getEnvOrDefault("CLOUDFLARE_R2_BUCKET_NAME", ""),
			PublicDomain:    getEnvOrDefault("CLOUDFLARE_R2_PUBLIC_DOMAIN", ""),
			KeyPrefix:       getEnvOrDefault("STORAGE_KEY_PREFIX", "assets"),
		},
		Titles: TitlesConfig{
			APIKey:  getEnvOrDefault("PUBLIC_AI_API_KEY", ""),
			BaseURL: getEnvOrDefault("TITLES_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnvOrDefault("TITLES_MODEL", "gpt-3.5-turbo"),
			Timeout: getDurationOrDefault("TITLES_TIMEOUT", 20*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Concurrency < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENCY must be at least 1")
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.CooldownMin > c.Scraper.CooldownMax {
		return fmt.Errorf("SCRAPER_COOLDOWN_MIN cannot be greater than SCRAPER_COOLDOWN_MAX")
	}

	if c.Fetch.Timeout < MinFetchTimeout || c.Fetch.Timeout > MaxFetchTimeout {
		return fmt.Errorf("FETCH_TIMEOUT must be between %s and %s", MinFetchTimeout, MaxFetchTimeout)
	}

	if c.Fetch.Engine != "http" && c.Fetch.Engine != "browser" {
		return fmt.Errorf("FETCH_ENGINE must be http or browser, got %q", c.Fetch.Engine)
	}

	if len(c.Fetch.UserAgents) == 0 {
		return fmt.Errorf("FETCH_USER_AGENTS must not be empty")
	}

	if c.Discovery.Limit < 1 {
		return fmt.Errorf("DISCOVERY_LIMIT must be at least 1")
	}

	if c.Ingest.OutputPath == "" {
		return fmt.Errorf("SCRAPED_ITEMS_OUTPUT must not be empty")
	}

	if c.Ingest.UploadAssets {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that the object store can be reached with this configuration.
func (s StorageConfig) Validate() error {
	missing := []string{}
	if s.AccountID == "" {
		missing = append(missing, "CLOUDFLARE_ACCOUNT_ID")
	}
	if s.AccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if s.SecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if s.Bucket == "" {
		missing = append(missing, "CLOUDFLARE_R2_BUCKET_NAME")
	}
	if s.PublicDomain == "" {
		missing = append(missing, "CLOUDFLARE_R2_PUBLIC_DOMAIN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("storage config incomplete, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Endpoint returns the R2 S3-compatible endpoint for the account.
func (s StorageConfig) Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID)
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3.1 Safari/605.1.15",
	}
}

// DefaultSearchTerms is the built-in term list sampled when no terms are configured.
func DefaultSearchTerms() []string {
	return []string{
		"yoga mat",
		"running shoes",
		"coffee maker",
		"wireless earbuds",
		"desk lamp",
		"backpack",
		"water bottle",
		"bluetooth speaker",
		"air fryer",
		"gaming mouse",
		"plant pot",
		"kitchen knife",
		"throw blanket",
		"protein powder",
		"book stand",
	}
}
