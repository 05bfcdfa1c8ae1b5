package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"songlead/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type StorageConfig struct {
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"`
	PublicBaseURL string `json:"public_base_url"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	From     string `json:"from"`
	AlertTo  string `json:"alert_to"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	OpenAIAPIKey string `json:"-"`
	OpenAIModel  string `json:"openai_model"`

	SunoAPIKey      string `json:"-"`
	SunoBaseURL     string `json:"suno_base_url"`
	SunoCallbackURL string `json:"suno_callback_url"`

	GatewayBaseURL string `json:"gateway_base_url"`
	GatewayToken   string `json:"-"`

	Storage StorageConfig `json:"storage"`
	Redis   RedisConfig   `json:"redis"`
	SMTP    SMTPConfig    `json:"smtp"`

	SentryDSN string `json:"-"`

	// Trigger predicates for inbound events. Defaults match the campaigns
	// the dashboard ships with; all are overridable per deployment.
	DefaultTrigger    string `json:"default_trigger"`
	TriggerKeyword    string `json:"trigger_keyword"`
	KeywordTrigger    string `json:"keyword_trigger"`
	RestartCommand    string `json:"restart_command"`
	DeliveredTrigger  string `json:"delivered_trigger"`
	ScriptSentTrigger string `json:"script_sent_trigger"`

	WatermarkURL string `json:"watermark_url"`
	VoiceNoteURL string `json:"voice_note_url"`

	DeliveryCooldownMin int `json:"delivery_cooldown_min"`
	ReclaimThresholdMin int `json:"reclaim_threshold_min"`
	RateLimitCallback   int `json:"rate_limit_callback"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "3001"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "songlead"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),

		SunoAPIKey:      getEnv("SUNO_API_KEY", ""),
		SunoBaseURL:     getEnv("SUNO_BASE_URL", "https://apibox.erweima.ai"),
		SunoCallbackURL: getEnv("SUNO_CALLBACK_URL", ""),

		GatewayBaseURL: getEnv("WA_GATEWAY_URL", "http://localhost:3500"),
		GatewayToken:   getEnv("WA_GATEWAY_TOKEN", ""),

		Storage: StorageConfig{
			Bucket:        getEnv("MEDIA_BUCKET", ""),
			Region:        getEnv("MEDIA_REGION", "us-east-1"),
			Endpoint:      getEnv("MEDIA_ENDPOINT", ""),
			PublicBaseURL: getEnv("MEDIA_PUBLIC_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			AlertTo:  getEnv("ALERT_EMAIL", ""),
		},

		SentryDSN: getEnv("SENTRY_DSN", ""),

		DefaultTrigger:    getEnv("DEFAULT_TRIGGER", "NewLead"),
		TriggerKeyword:    getEnv("TRIGGER_KEYWORD", "#webpro1490"),
		KeywordTrigger:    getEnv("KEYWORD_TRIGGER", "LeadWeb1490"),
		RestartCommand:    getEnv("RESTART_COMMAND", "#link"),
		DeliveredTrigger:  getEnv("DELIVERED_TRIGGER", "SongDelivered"),
		ScriptSentTrigger: getEnv("SCRIPT_SENT_TRIGGER", "ScriptSent"),

		WatermarkURL: getEnv("WATERMARK_URL", ""),
		VoiceNoteURL: getEnv("VOICE_NOTE_URL", ""),

		DeliveryCooldownMin: getEnvAsInt("DELIVERY_COOLDOWN_MIN", 15),
		ReclaimThresholdMin: getEnvAsInt("RECLAIM_THRESHOLD_MIN", 10),
		RateLimitCallback:   getEnvAsInt("RATE_LIMIT_CALLBACK", 60),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if AppConfig.SunoAPIKey == "" {
		return fmt.Errorf("SUNO_API_KEY is required")
	}
	if AppConfig.SunoCallbackURL == "" {
		return fmt.Errorf("SUNO_CALLBACK_URL is required")
	}
	if AppConfig.Storage.Bucket == "" {
		return fmt.Errorf("MEDIA_BUCKET is required")
	}
	if AppConfig.Environment == "production" && AppConfig.WatermarkURL == "" {
		return fmt.Errorf("WATERMARK_URL is required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// MigrateDB creates or updates the schema for every model the service owns.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Lead{},
		&models.LeadMessage{},
		&models.Sequence{},
		&models.Song{},
		&models.Script{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Gateway: %s", AppConfig.GatewayBaseURL)
	log.Printf("Media bucket: %s (%s)", AppConfig.Storage.Bucket, AppConfig.Storage.Region)
	log.Printf("Triggers: default=%s keyword=%s restart=%s",
		AppConfig.DefaultTrigger, AppConfig.KeywordTrigger, AppConfig.RestartCommand)
}
