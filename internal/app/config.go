package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	MediaDir           string
	MediaBaseURL       string
	FFProbePath        string
	PlayerCacheMax     int   // max player handles held at once
	DownloadRateBytes  int64 // per-second media fetch throttle; 0 = unlimited
	DownloadTimeoutSec int64
	WarmRecentCount    int // recent watch-history entries pre-warmed at startup
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "dogetionary"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MediaDir:           getEnv("MEDIA_DIR", "media"),
		MediaBaseURL:       strings.TrimRight(getEnv("MEDIA_BASE_URL", "http://localhost:5000"), "/"),
		FFProbePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		PlayerCacheMax:     int(getEnvInt64("PLAYER_CACHE_MAX_ENTRIES", 12)),
		DownloadRateBytes:  getEnvInt64("DOWNLOAD_RATE_LIMIT_BYTES", 0),
		DownloadTimeoutSec: getEnvInt64("DOWNLOAD_TIMEOUT_SECONDS", 300),
		WarmRecentCount:    int(getEnvInt64("PLAYER_WARM_RECENT_COUNT", 5)),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
