package main

import (
	"bond-alert-bot/config"
	"bond-alert-bot/internal/alert"
	"bond-alert-bot/internal/commands"
	"bond-alert-bot/internal/database"
	"bond-alert-bot/internal/metrics"
	"bond-alert-bot/internal/price"
	"bond-alert-bot/internal/scheduler"
	"bond-alert-bot/internal/server"
	"bond-alert-bot/internal/telegram"
	"bond-alert-bot/lib/translation"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure(config.GetString("locales_dir"), config.GetString("bot_lang"))

	store, err := database.Open(config.GetString("db_driver"), config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	botMetrics := metrics.NewBotMetrics(prometheus.DefaultRegisterer)
	botMetrics.LoadFromDB(store)
	if n, err := store.CountUsers(context.Background()); err == nil {
		botMetrics.SetUsers(n)
	}

	prices := price.NewClient(price.ClientConfig{
		BaseURL:           config.GetString("price_api_url"),
		Suffix:            config.GetString("price_api_url_suffix"),
		Token:             config.GetString("price_api_token"),
		Timeout:           config.GetDuration("price_api_timeout"),
		RequestsPerSecond: config.GetFloat64("price_api_rps"),
	})

	handler := commands.NewHandler(store, prices, botMetrics)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, handler, botMetrics)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := bot.RegisterMenu(); err != nil {
		log.Errorf("Failed to register command menu: %v", err)
	}

	engine := alert.NewEngine(alert.EngineConfig{
		Store:       store,
		Prices:      prices,
		Notifier:    bot,
		Observer:    botMetrics,
		Concurrency: config.GetInt("fetch_concurrency"),
	})

	location, err := time.LoadLocation(config.GetString("timezone"))
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", config.GetString("timezone"), err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Spec:     config.GetString("alert_schedule"),
		Location: location,
		Runner:   engine,
		Skips:    botMetrics,
	})
	if err != nil {
		log.Fatalf("Failed to create alert scheduler: %v", err)
	}
	sched.Start()
	log.Infof("Next alert check at %s", sched.Next().In(location).Format(time.RFC1123))

	if config.GetBool("run_on_start") {
		go sched.Trigger()
	}

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleUpdates(ctx, bot, updates)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				botMetrics.SaveToDB(store)
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := server.New(config.GetInt("port"), prometheus.DefaultGatherer)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Failed to start metrics and health server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down...")
	cancel()
	bot.StopReceivingUpdates()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}

	botMetrics.SaveToDB(store)
	log.Info("Metrics saved, shutting down...")
}

func setupLogging() {
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting telegram bot...")
}

func handleUpdates(ctx context.Context, bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		bot.HandleUpdate(ctx, update)
	}
}
