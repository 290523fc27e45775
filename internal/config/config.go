package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultSQLiteDSN = "file:contactgroups.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

type AppConfig struct {
	HTTPPort                string
	Env                     string
	LogLevel                string
	DatabaseDSN             string
	DBDriver                string
	SwaggerEnable           bool
	OpenAPIPath             string
	MasterToken             string
	JWTSecret               string
	PublicBaseURL           string
	CORSOrigins             []string
	BcryptCost              int
	RequireAccountForLocked bool
	EventsWebhookURL        string
	EventsWebhookToken      string
	EventLogDir             string
	RelayInterval           time.Duration
	Postgres                PostgresConfig
	Storage                 StorageConfig
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

func Load() *AppConfig {
	pg := PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", ""),
		Port:     getEnv("POSTGRES_PORT", ""),
		User:     getEnv("POSTGRES_USER", ""),
		Password: getEnv("POSTGRES_PASSWORD", ""),
		DBName:   getEnv("POSTGRES_DB", ""),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}

	// MINIO_* continua aceito quando STORAGE_* não está definido
	storage := StorageConfig{
		Endpoint:  getEnvFirst("", "STORAGE_ENDPOINT", "MINIO_ENDPOINT"),
		AccessKey: getEnvFirst("", "STORAGE_ACCESS_KEY", "MINIO_ACCESS_KEY"),
		SecretKey: getEnvFirst("", "STORAGE_SECRET_KEY", "MINIO_SECRET_KEY"),
		Bucket:    getEnvFirst("", "STORAGE_BUCKET", "MINIO_BUCKET"),
		Region:    getEnvFirst("", "STORAGE_REGION", "MINIO_REGION"),
		UseSSL:    getEnvFirst("false", "STORAGE_USE_SSL", "MINIO_USE_SSL") == "true",
		PublicURL: getEnvFirst("", "STORAGE_PUBLIC_URL", "MINIO_PUBLIC_URL"),
	}

	dsn := getEnv("DATABASE_DSN", "")
	driver := strings.ToLower(getEnv("DB_DRIVER", ""))

	if driver == "" {
		lower := strings.ToLower(dsn)
		switch {
		case strings.HasPrefix(lower, "postgres"):
			driver = "postgres"
		case pg.Host != "":
			driver = "postgres"
		default:
			driver = "sqlite"
		}
	}

	switch driver {
	case "postgres":
		if dsn == "" {
			dsn = buildPostgresDSN(pg)
		}
	case "sqlite":
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
	}

	cfg := &AppConfig{
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		Env:                     getEnv("APP_ENV", "development"),
		LogLevel:                strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		DatabaseDSN:             dsn,
		DBDriver:                driver,
		SwaggerEnable:           getEnv("SWAGGER_ENABLE", "true") == "true",
		OpenAPIPath:             getEnv("OPENAPI_PATH", "docs/openapi.yaml"),
		MasterToken:             getEnv("API_MASTER_TOKEN", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		PublicBaseURL:           strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:             splitList(getEnv("CORS_ORIGINS", "*")),
		BcryptCost:              getEnvInt("BCRYPT_COST", 0),
		RequireAccountForLocked: getEnv("PASSWORD_GROUPS_REQUIRE_ACCOUNT", "false") == "true",
		EventsWebhookURL:        strings.TrimSpace(getEnv("EVENTS_WEBHOOK_URL", "")),
		EventsWebhookToken:      getEnv("EVENTS_WEBHOOK_TOKEN", ""),
		EventLogDir:             getEnv("EVENT_LOG_DIR", ""),
		RelayInterval:           getEnvDuration("RELAY_INTERVAL", 5*time.Second),
		Postgres:                pg,
		Storage:                 storage,
	}
	return cfg
}

func buildPostgresDSN(pg PostgresConfig) string {
	host := pg.Host
	if host == "" {
		host = "localhost"
	}
	port := pg.Port
	if port == "" {
		port = "5432"
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}

	u := &url.URL{Scheme: "postgres"}
	if pg.User != "" {
		if pg.Password != "" {
			u.User = url.UserPassword(pg.User, pg.Password)
		} else {
			u.User = url.User(pg.User)
		}
	}
	if host != "" {
		if port != "" {
			u.Host = fmt.Sprintf("%s:%s", host, port)
		} else {
			u.Host = host
		}
	}
	if pg.DBName != "" {
		u.Path = pg.DBName
	}
	q := u.Query()
	if ssl != "" {
		q.Set("sslmode", ssl)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvFirst returns the first non-empty variable among keys.
func getEnvFirst(def string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warning: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		log.Printf("warning: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first setting that prevents the server from starting.
func (c *AppConfig) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN required for %s driver", c.DBDriver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET required")
	}
	return nil
}

func MustLoad() *AppConfig {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	return cfg
}
