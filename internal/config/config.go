package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	AuthMode             string        `mapstructure:"AUTH_MODE"`
	StoreBackend         string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	FirestoreProjectID   string        `mapstructure:"FIRESTORE_PROJECT_ID"`
	GoogleCredentials    string        `mapstructure:"GOOGLE_CREDENTIALS_FILE"`
	JWTSigningKey        string        `mapstructure:"JWT_SIGNING_KEY"`
	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit            string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AssistantTimeout     time.Duration `mapstructure:"ASSISTANT_TIMEOUT"`
	ClinicTimezone       string        `mapstructure:"CLINIC_TIMEZONE"`
	OpenAIAPIKey         string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIChatModel      string        `mapstructure:"OPENAI_MODEL_CHAT"`
	OpenAISentimentModel string        `mapstructure:"OPENAI_MODEL_SENTIMENT"`
	AssistantMaxTurns    int           `mapstructure:"ASSISTANT_MAX_TURNS"`
	RemindersEnabled     bool          `mapstructure:"REMINDERS_ENABLED"`
	ReminderInterval     time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ReminderLeadTime     time.Duration `mapstructure:"REMINDER_LEAD_TIME"`
	ReminderTolerance    time.Duration `mapstructure:"REMINDER_TOLERANCE"`
	PushEnabled          bool          `mapstructure:"PUSH_ENABLED"`
	HIPAAEncryptionKey   string        `mapstructure:"HIPAA_ENCRYPTION_KEY"`
	HIPAAKeyVersion      int           `mapstructure:"HIPAA_KEY_VERSION"`
	HIPAAPreviousKeys    string        `mapstructure:"HIPAA_PREVIOUS_KEYS"`
}

var boundKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"FIRESTORE_PROJECT_ID", "GOOGLE_CREDENTIALS_FILE", "JWT_SIGNING_KEY", "TOKEN_TTL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT", "ASSISTANT_TIMEOUT", "CLINIC_TIMEZONE", "OPENAI_API_KEY", "OPENAI_MODEL_CHAT",
	"OPENAI_MODEL_SENTIMENT", "ASSISTANT_MAX_TURNS", "REMINDERS_ENABLED", "REMINDER_INTERVAL",
	"REMINDER_LEAD_TIME", "REMINDER_TOLERANCE", "PUSH_ENABLED",
	"HIPAA_ENCRYPTION_KEY", "HIPAA_KEY_VERSION", "HIPAA_PREVIOUS_KEYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("STORE_BACKEND", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("ASSISTANT_TIMEOUT", "90s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("OPENAI_MODEL_CHAT", "gpt-4o-mini")
	v.SetDefault("ASSISTANT_MAX_TURNS", 20)
	v.SetDefault("REMINDERS_ENABLED", true)
	v.SetDefault("REMINDER_INTERVAL", "1m")
	v.SetDefault("REMINDER_LEAD_TIME", "3h")
	v.SetDefault("REMINDER_TOLERANCE", "7m")
	v.SetDefault("PUSH_ENABLED", false)
	v.SetDefault("HIPAA_KEY_VERSION", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.OpenAISentimentModel == "" {
		cfg.OpenAISentimentModel = cfg.OpenAIChatModel
	}

	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case "firestore":
		if cfg.FirestoreProjectID == "" {
			return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required when STORE_BACKEND is firestore")
		}
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be \"postgres\" or \"firestore\", got %q", cfg.StoreBackend)
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a token are treated as an admin user.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (tokenless requests get admin)
//   - AUTH_ISSUER set → "external" (Firebase Auth, Keycloak, etc.)
//   - Otherwise       → "standalone" (built-in password sign-in)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	if c.AuthIssuer != "" {
		return "external"
	}
	return "standalone"
}

// SigningKey decodes JWT_SIGNING_KEY. It returns nil when the key is unset.
func (c *Config) SigningKey() ([]byte, error) {
	if c.JWTSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.JWTSigningKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// Location returns the clinic time zone used to combine appointment dates
// and times of day.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "standalone" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\", \"standalone\", or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
				"Use AUTH_MODE=standalone to use the built-in sign-in", c.Env)
	}

	key, err := c.SigningKey()
	if err != nil {
		return err
	}
	if mode == "standalone" && len(key) == 0 {
		return fmt.Errorf("JWT_SIGNING_KEY is required when AUTH_MODE is \"standalone\"")
	}
	if len(key) > 0 && len(key) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if c.RequestTimeout < 0 || c.AssistantTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT and ASSISTANT_TIMEOUT must not be negative")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.RemindersEnabled {
		if c.ReminderInterval <= 0 {
			return fmt.Errorf("REMINDER_INTERVAL must be positive")
		}
		if c.ReminderTolerance < 0 || c.ReminderLeadTime <= c.ReminderTolerance {
			return fmt.Errorf("REMINDER_LEAD_TIME must exceed REMINDER_TOLERANCE")
		}
	}
	if c.HIPAAEncryptionKey != "" {
		if key, err := hex.DecodeString(c.HIPAAEncryptionKey); err != nil || len(key) != 32 {
			return fmt.Errorf("HIPAA_ENCRYPTION_KEY must be 32 bytes (64 hex chars)")
		}
		if c.HIPAAKeyVersion < 1 {
			return fmt.Errorf("HIPAA_KEY_VERSION must be positive")
		}
	}
	if c.PushEnabled && c.FirestoreProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required when PUSH_ENABLED is true")
	}

	return nil
}
