package main

import (
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment")
	}

	configureLogrus()

	// Start order matters: services resolve their dependencies in Start.
	ctx, err := context.NewCtx(
		&services.DatabaseService{},
		&services.RedisService{},
		&services.MonitoringService{},
		&services.JWTService{},
		&services.SecurityLogService{},
		&services.BlockedIPService{},
		&services.EscalationService{},
		&services.RateLimitService{},
		&services.AdminGuardService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service context")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service context stopped")
		return
	}
}

func configureLogrus() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
