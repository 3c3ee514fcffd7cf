package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	StoreDriver        string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	AllowAdminSignup   bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ChangeChannel      string
	StreamHeartbeat    time.Duration
	ShutdownTimeout    time.Duration
	ReadHeaderTimeout  time.Duration
	MetricsEnabled     bool
	RateLimitSignup    int
	RateLimitLogin     int
	RateLimitUserRead  int
	RateLimitUserWrite int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		StoreDriver:        GetString("STORE_DRIVER", "postgres"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://teamroster:teamroster@db:5432/teamroster?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24*7)) * time.Hour,
		AllowAdminSignup:   GetBool("ALLOW_ADMIN_SIGNUP", false),
		RedisAddr:          GetString("REDIS_ADDR", ""),
		RedisPassword:      GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		ChangeChannel:      GetString("CHANGE_CHANNEL", "teamroster:changes"),
		StreamHeartbeat:    GetDuration("STREAM_HEARTBEAT", 25*time.Second),
		ShutdownTimeout:    GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:  GetDuration("READ_HEADER_TIMEOUT", 5*time.Second),
		MetricsEnabled:     GetBool("METRICS_ENABLED", true),
		RateLimitSignup:    GetInt("RATE_LIMIT_SIGNUP", 5),
		RateLimitLogin:     GetInt("RATE_LIMIT_LOGIN", 12),
		RateLimitUserRead:  GetInt("RATE_LIMIT_USER_READ", 240),
		RateLimitUserWrite: GetInt("RATE_LIMIT_USER_WRITE", 120),
	}
}

// UsesMemoryStore reports whether the document tree lives in process memory.
func (c APIConfig) UsesMemoryStore() bool {
	return c.StoreDriver == "memory"
}
