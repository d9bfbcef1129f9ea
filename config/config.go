package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	PublicBaseURL      string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching, rate limits and pixel dedup
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Registration security
	RegisterMaxPerIPPerDay        int
	RegisterAttemptCooldownSec    int
	RegisterFailedMaxPerIPPerHour int
	RegisterTempBanMinutes        int
	// Reader economy
	DefaultMonthlyGoal decimal.Decimal
	ReferralBonus      decimal.Decimal
	MinWithdraw        decimal.Decimal
	PremiumPrice       decimal.Decimal
	StatsCacheSeconds  int
	// Marketing pixel
	PixelID            string
	PixelAccessToken   string
	PixelTestEventCode string
	PixelAPIVersion    string
	// Notice bar configuration
	NoticeTitle string
	NoticeHTML  string
}

// fileConfig mirrors the grouped layout of config/config.yaml. JSON files parse
// through the same decoder.
type fileConfig struct {
	App struct {
		AppPort            string   `yaml:"AppPort"`
		JWTSecret          string   `yaml:"JWTSecret"`
		TokenTTLHours      int      `yaml:"TokenTTLHours"`
		PublicBaseURL      string   `yaml:"PublicBaseURL"`
		RateLimitPerMinute int      `yaml:"RateLimitPerMinute"`
		AllowedOrigins     []string `yaml:"AllowedOrigins"`
	} `yaml:"app"`
	Gin struct {
		Mode    string `yaml:"Mode"`
		LogPath string `yaml:"LogPath"`
	} `yaml:"gin"`
	Database struct {
		DatabaseURI string `yaml:"DatabaseURI"`
		DBHost      string `yaml:"DBHost"`
		DBPort      string `yaml:"DBPort"`
		DBUser      string `yaml:"DBUser"`
		DBPassword  string `yaml:"DBPassword"`
		DBName      string `yaml:"DBName"`
	} `yaml:"database"`
	Redis struct {
		RedisHost     string `yaml:"RedisHost"`
		RedisPort     int    `yaml:"RedisPort"`
		RedisDB       int    `yaml:"RedisDB"`
		RedisPassword string `yaml:"RedisPassword"`
	} `yaml:"redis"`
	Log struct {
		Level      string `yaml:"Level"`
		Path       string `yaml:"Path"`
		MaxSizeMB  int    `yaml:"MaxSizeMB"`
		MaxBackups int    `yaml:"MaxBackups"`
		MaxAgeDays int    `yaml:"MaxAgeDays"`
		Compress   bool   `yaml:"Compress"`
	} `yaml:"log"`
	Register struct {
		MaxPerIPPerDay        int `yaml:"MaxPerIPPerDay"`
		AttemptCooldownSec    int `yaml:"AttemptCooldownSec"`
		FailedMaxPerIPPerHour int `yaml:"FailedMaxPerIPPerHour"`
		TempBanMinutes        int `yaml:"TempBanMinutes"`
	} `yaml:"register"`
	Reader struct {
		DefaultMonthlyGoal string `yaml:"DefaultMonthlyGoal"`
		ReferralBonus      string `yaml:"ReferralBonus"`
		MinWithdraw        string `yaml:"MinWithdraw"`
		PremiumPrice       string `yaml:"PremiumPrice"`
		StatsCacheSeconds  int    `yaml:"StatsCacheSeconds"`
	} `yaml:"reader"`
	Pixel struct {
		PixelID       string `yaml:"PixelID"`
		AccessToken   string `yaml:"AccessToken"`
		TestEventCode string `yaml:"TestEventCode"`
		APIVersion    string `yaml:"APIVersion"`
	} `yaml:"pixel"`
	Notice struct {
		Title string `yaml:"Title"`
		HTML  string `yaml:"HTML"`
	} `yaml:"notice"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.yaml (or config.json) -> defaults -> environment variable overrides
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		found, err := loadFileConfig(filepath.Join("config", name), &cfg)
		if err != nil {
			log.Fatalf("invalid config file %s: %v", name, err)
		}
		if found {
			break
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration, filling defaults for zero values.
// Tests and embedded callers use it instead of Load.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadFileConfig reads a grouped config file into out. A missing file is not an error.
func loadFileConfig(path string, out *AppConfig) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return true, err
	}

	out.AppPort = fc.App.AppPort
	out.JWTSecret = fc.App.JWTSecret
	out.TokenTTLHours = fc.App.TokenTTLHours
	out.PublicBaseURL = fc.App.PublicBaseURL
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins

	out.GinMode = fc.Gin.Mode
	out.GinPath = fc.Gin.LogPath

	out.DatabaseURI = fc.Database.DatabaseURI
	out.DBHost = fc.Database.DBHost
	out.DBPort = fc.Database.DBPort
	out.DBUser = fc.Database.DBUser
	out.DBPassword = fc.Database.DBPassword
	out.DBName = fc.Database.DBName

	out.RedisHost = fc.Redis.RedisHost
	out.RedisPort = fc.Redis.RedisPort
	out.RedisDB = fc.Redis.RedisDB
	out.RedisPassword = fc.Redis.RedisPassword

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.RegisterMaxPerIPPerDay = fc.Register.MaxPerIPPerDay
	out.RegisterAttemptCooldownSec = fc.Register.AttemptCooldownSec
	out.RegisterFailedMaxPerIPPerHour = fc.Register.FailedMaxPerIPPerHour
	out.RegisterTempBanMinutes = fc.Register.TempBanMinutes

	for _, m := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{fc.Reader.DefaultMonthlyGoal, &out.DefaultMonthlyGoal},
		{fc.Reader.ReferralBonus, &out.ReferralBonus},
		{fc.Reader.MinWithdraw, &out.MinWithdraw},
		{fc.Reader.PremiumPrice, &out.PremiumPrice},
	} {
		if m.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(m.raw)
		if err != nil {
			return true, err
		}
		*m.dst = d
	}
	out.StatsCacheSeconds = fc.Reader.StatsCacheSeconds

	out.PixelID = fc.Pixel.PixelID
	out.PixelAccessToken = fc.Pixel.AccessToken
	out.PixelTestEventCode = fc.Pixel.TestEventCode
	out.PixelAPIVersion = fc.Pixel.APIVersion

	out.NoticeTitle = fc.Notice.Title
	out.NoticeHTML = fc.Notice.HTML
	return true, nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "betareader"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	// Registration hardening defaults
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.RegisterFailedMaxPerIPPerHour == 0 {
		c.RegisterFailedMaxPerIPPerHour = 20
	}
	if c.RegisterTempBanMinutes == 0 {
		c.RegisterTempBanMinutes = 60
	}
	if !c.DefaultMonthlyGoal.IsPositive() {
		c.DefaultMonthlyGoal = decimal.NewFromInt(500)
	}
	if c.ReferralBonus.IsZero() {
		c.ReferralBonus = decimal.NewFromInt(10)
	}
	if c.MinWithdraw.IsZero() {
		c.MinWithdraw = decimal.NewFromInt(50)
	}
	if c.PremiumPrice.IsZero() {
		c.PremiumPrice = decimal.RequireFromString("19.90")
	}
	if c.StatsCacheSeconds == 0 {
		c.StatsCacheSeconds = 60
	}
	if c.PixelAPIVersion == "" {
		c.PixelAPIVersion = "v18.0"
	}
	if c.NoticeTitle == "" {
		c.NoticeTitle = "Aviso"
	}
	if c.NoticeHTML == "" {
		c.NoticeHTML = "Bem-vindo ao Beta Reader Brasil!"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("TOKEN_TTL_HOURS", ""); v != "" {
		c.TokenTTLHours = mustParseInt(v)
	}
	if v := getEnv("PUBLIC_BASE_URL", ""); v != "" {
		c.PublicBaseURL = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Registration env overrides
	if v := getEnv("REGISTER_MAX_PER_IP_PER_DAY", ""); v != "" {
		c.RegisterMaxPerIPPerDay = mustParseInt(v)
	}
	if v := getEnv("REGISTER_ATTEMPT_COOLDOWN_SEC", ""); v != "" {
		c.RegisterAttemptCooldownSec = mustParseInt(v)
	}
	if v := getEnv("REGISTER_FAILED_MAX_PER_IP_PER_HOUR", ""); v != "" {
		c.RegisterFailedMaxPerIPPerHour = mustParseInt(v)
	}
	if v := getEnv("REGISTER_TEMP_BAN_MINUTES", ""); v != "" {
		c.RegisterTempBanMinutes = mustParseInt(v)
	}
	// Reader economy
	if v := getEnv("DEFAULT_MONTHLY_GOAL", ""); v != "" {
		c.DefaultMonthlyGoal = mustParseDecimal(v)
	}
	if v := getEnv("REFERRAL_BONUS", ""); v != "" {
		c.ReferralBonus = mustParseDecimal(v)
	}
	if v := getEnv("MIN_WITHDRAW", ""); v != "" {
		c.MinWithdraw = mustParseDecimal(v)
	}
	if v := getEnv("PREMIUM_PRICE", ""); v != "" {
		c.PremiumPrice = mustParseDecimal(v)
	}
	if v := getEnv("STATS_CACHE_SECONDS", ""); v != "" {
		c.StatsCacheSeconds = mustParseInt(v)
	}
	// Pixel
	if v := getEnv("FB_PIXEL_ID", ""); v != "" {
		c.PixelID = v
	}
	if v := getEnv("FB_ACCESS_TOKEN", ""); v != "" {
		c.PixelAccessToken = v
	}
	if v := getEnv("FB_TEST_EVENT_CODE", ""); v != "" {
		c.PixelTestEventCode = v
	}
	if v := getEnv("FB_API_VERSION", ""); v != "" {
		c.PixelAPIVersion = v
	}
	if v := getEnv("NOTICE_TITLE", ""); v != "" {
		c.NoticeTitle = v
	}
	if v := getEnv("NOTICE_HTML", ""); v != "" {
		c.NoticeHTML = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func mustParseDecimal(val string) decimal.Decimal {
	d, err := decimal.NewFromString(val)
	if err != nil {
		log.Fatalf("invalid decimal value %s: %v", val, err)
	}
	return d
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
