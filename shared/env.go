package shared

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("key", key).Warnf("Invalid integer %q, using %d", v, fallback)
		return fallback
	}
	return n
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.WithField("key", key).Warnf("Invalid duration %q, using %s", v, fallback)
		return fallback
	}
	return d
}
