package configs

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port          int
	StorageDriver string

	MongoURL      string
	MongoDatabase string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost string
	RedisPort int

	JWTSecret  string
	BcryptCost int

	SendGridAPIKey string
	MailFrom       string

	LogDir         string
	AvatarMaxBytes int64
	RateLimitMax   int
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GO_ENV") != "test" {
			log.Println("No .env file found, using environment and default values")
		}
	}

	return Config{
		Port:          envInt("PORT", 3000),
		StorageDriver: strings.ToLower(envString("STORAGE_DRIVER", StorageMongo)),

		MongoURL:      envString("MONGODB_URL", "mongodb://127.0.0.1:27017"),
		MongoDatabase: envString("MONGODB_DATABASE", "task-manager-api"),

		DBHost:     envString("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     envString("DB_NAME", "task_manager"),

		RedisHost: os.Getenv("REDIS_HOST"),
		RedisPort: envInt("REDIS_PORT", 6379),

		JWTSecret:  envString("JWT_SECRET", "secret"),
		BcryptCost: envInt("BCRYPT_COST", 8),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailFrom:       envString("MAIL_FROM", "no-reply@task-manager.local"),

		LogDir:         os.Getenv("LOG_DIR"),
		AvatarMaxBytes: int64(envInt("AVATAR_MAX_BYTES", 1000000)),
		RateLimitMax:   envInt("RATE_LIMIT_MAX", 100),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
