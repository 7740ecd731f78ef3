package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"sync"
	"time"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// .env is optional, real environment variables win
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("port", "PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("price_api_url", "PRICE_API_URL")
		viper.BindEnv("price_api_url_suffix", "PRICE_API_URL_SUFFIX")
		viper.BindEnv("price_api_token", "PRICE_API_TOKEN")
		viper.BindEnv("price_api_timeout", "PRICE_API_TIMEOUT")
		viper.BindEnv("price_api_rps", "PRICE_API_RPS")
		viper.BindEnv("fetch_concurrency", "FETCH_CONCURRENCY")
		viper.BindEnv("alert_schedule", "ALERT_SCHEDULE")
		viper.BindEnv("timezone", "TIMEZONE")
		viper.BindEnv("run_on_start", "RUN_ON_START")
		viper.BindEnv("db_driver", "DB_DRIVER")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("bot_lang", "BOT_LANG")
		viper.BindEnv("locales_dir", "LOCALES_DIR")

		viper.SetDefault("port", 9090)
		viper.SetDefault("price_api_timeout", 5*time.Second)
		viper.SetDefault("price_api_rps", 0)
		viper.SetDefault("fetch_concurrency", 30)
		viper.SetDefault("alert_schedule", "*/5 7-18 * * 1-5")
		viper.SetDefault("timezone", "Europe/Rome")
		viper.SetDefault("run_on_start", false)
		viper.SetDefault("db_driver", "sqlite")
		viper.SetDefault("db_path", "/app/data/bot.db")
		viper.SetDefault("debug", false)
		viper.SetDefault("bot_lang", "en")
		viper.SetDefault("locales_dir", "locales")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
