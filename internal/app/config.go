package app

import (
	"strings"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/envutil"
)

type Config struct {
	Port           string
	LogMode        string
	AllowedOrigins []string
}

func LoadConfig() Config {
	origins := strings.Split(envutil.Str("ALLOWED_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return Config{
		Port:           envutil.Str("PORT", "8080"),
		LogMode:        envutil.Str("LOG_MODE", "development"),
		AllowedOrigins: origins,
	}
}
