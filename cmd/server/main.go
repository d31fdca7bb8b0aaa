// @title           Классный сайт API
// @version         1.0
// @description     Аутентификация, сессии и управление пользователями классного сайта.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"classsite/internal/app"
	"classsite/internal/config"
	"classsite/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default $CONFIG_PATH or config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Ошибка загрузки конфигурации")
	}
	log := logger.New(cfg.Log)
	log.WithFields(logrus.Fields{"env": cfg.App.Env, "db": cfg.Database.Driver, "sms": cfg.SMS.Provider}).Info("Конфигурация загружена")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Ошибка инициализации приложения")
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.WithError(err).Error("Ошибка сервера")
	}
}
