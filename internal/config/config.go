package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	CRM      CRMConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	Session  SessionConfig
	OTP      OTPConfig
	CORS     CORSConfig
	Popup    PopupConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CRMConfig struct {
	// URL receives every CRM call except the verified-flag update, which
	// targets VerifyURL.
	URL             string
	VerifyURL       string
	User            string
	Key             string
	RedirectBaseURL string
	Timeout         time.Duration
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

type OTPConfig struct {
	TTL time.Duration
	// ConsumeOnUpstreamFailure burns the challenge even when the CRM
	// verified-flag update fails. Off by default: the caller may retry
	// verification with the same OTP instead of re-requesting one.
	ConsumeOnUpstreamFailure bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type PopupConfig struct {
	Enabled  bool
	ImageURL string
}

var defaultAllowedOrigins = []string{
	"https://agri.smvec.ac.in",
	"https://arts.smvec.ac.in",
	"https://law.smvec.ac.in",
	"https://medscience.smvec.ac.in",
	"http://localhost:5173",
	"http://localhost:3000",
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		CRM: CRMConfig{
			URL:             getEnv("CRM_URL", "https://application.smvec.ac.in/custom/service/v4_1_custom/rest.php"),
			VerifyURL:       getEnv("OTP_VERIFY_URL", ""),
			User:            getEnv("CRM_USER", ""),
			Key:             getEnv("CRM_KEY", ""),
			RedirectBaseURL: getEnv("REDIRECT_BASE_URL", "https://apply.smvec.ac.in"),
			Timeout:         getEnvAsDuration("CRM_TIMEOUT", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host: getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port: getEnvAsInt("SMTP_PORT", 587),
			User: getEnv("SMTP_USER", ""),
			Pass: getEnv("SMTP_PASS", ""),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", ""),
		},
		Session: SessionConfig{
			Secret: getEnv("SESSION_SECRET", ""),
			TTL:    getEnvAsDuration("SESSION_TTL", 10*time.Minute),
		},
		OTP: OTPConfig{
			TTL:                      getEnvAsDuration("OTP_TTL", 5*time.Minute),
			ConsumeOnUpstreamFailure: getEnvAsBool("OTP_CONSUME_ON_UPSTREAM_FAILURE", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", defaultAllowedOrigins),
		},
		Popup: PopupConfig{
			Enabled:  getEnvAsBool("POPUP_ENABLED", true),
			ImageURL: getEnv("POPUP_IMAGE_URL", ""),
		},
	}

	required := map[string]string{
		"CRM_USER":       cfg.CRM.User,
		"CRM_KEY":        cfg.CRM.Key,
		"OTP_VERIFY_URL": cfg.CRM.VerifyURL,
		"SMTP_USER":      cfg.SMTP.User,
		"SMTP_PASS":      cfg.SMTP.Pass,
		"SESSION_SECRET": cfg.Session.Secret,
	}

	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes (256 bits)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
